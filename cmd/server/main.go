package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/terapio/session-transcription/internal/audio"
	"github.com/terapio/session-transcription/internal/cleanup"
	"github.com/terapio/session-transcription/internal/handlers"
	"github.com/terapio/session-transcription/internal/queue"
	"github.com/terapio/session-transcription/internal/recognition"
	"github.com/terapio/session-transcription/internal/storage"
	"github.com/terapio/session-transcription/internal/watch"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Recognition recognition.Config `yaml:"recognition"`

	Live struct {
		ThrottleSeconds int `yaml:"throttle_seconds"`
	} `yaml:"live"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Watch struct {
		Enabled         bool   `yaml:"enabled"`
		Folder          string `yaml:"folder"`
		DebounceSeconds int    `yaml:"debounce_seconds"`
	} `yaml:"watch"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func main() {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := loadConfig(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(config.Logging.Level)

	if err := cleanup.EnsureTempDirExists(config.Storage.TempDir); err != nil {
		logrus.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := os.MkdirAll(config.Storage.OutputDir, 0755); err != nil {
		logrus.Fatalf("Failed to create output directory: %v", err)
	}

	logrus.Info("Initializing components...")

	if !audio.CheckFFmpeg() {
		logrus.Warn("ffmpeg not found; video submissions will fail until it is installed")
	}

	normalizer := audio.NewNormalizer(config.Storage.TempDir)
	recognizer := recognition.NewClient(config.Recognition)
	transcriber := recognition.NewTranscriber(recognizer)
	localStorage := storage.NewLocalStorage(config.Storage.OutputDir)

	db, err := storage.NewMetadataDB(config.Storage.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	workerPool := queue.NewWorkerPool(
		config.Workers.Count,
		normalizer,
		transcriber,
		localStorage,
		db,
	)
	workerPool.Start()

	cleanupScheduler := cleanup.NewScheduler(
		config.Storage.TempDir,
		time.Duration(config.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(config.Cleanup.MaxAgeHours)*time.Hour,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	if config.Watch.Enabled {
		monitor, err := watch.NewMonitor(
			config.Watch.Folder,
			workerPool,
			time.Duration(config.Watch.DebounceSeconds)*time.Second,
		)
		if err != nil {
			logrus.Fatalf("Failed to create inbox monitor: %v", err)
		}
		if err := monitor.Start(); err != nil {
			logrus.Fatalf("Failed to start inbox monitor: %v", err)
		}
		defer monitor.Stop()
	}

	app := fiber.New(fiber.Config{
		BodyLimit: config.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	uploadHandler := handlers.NewUploadHandler(workerPool, config.Storage.TempDir, config.Limits.MaxFileSizeMB)
	videoHandler := handlers.NewVideoHandler(workerPool, config.Storage.TempDir, config.Limits.MaxFileSizeMB)
	liveHandler := handlers.NewLiveHandler(
		normalizer,
		transcriber,
		localStorage,
		db,
		config.Storage.TempDir,
		time.Duration(config.Live.ThrottleSeconds)*time.Second,
	)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/recordings", uploadHandler.Handle)
	app.Post("/recordings/video", videoHandler.Handle)

	app.Get("/ws/live", websocket.New(liveHandler.Handle))

	app.Get("/recordings", func(c *fiber.Ctx) error {
		recordings, err := db.ListRecordings(50)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(recordings)
	})

	app.Get("/recordings/:id/text", func(c *fiber.Ctx) error {
		jobID := c.Params("id")

		recording, err := db.GetRecording(jobID)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "Recording not found"})
		}

		localPath, ok := recording["local_path"].(string)
		if !ok || localPath == "" {
			return c.Status(404).JSON(fiber.Map{"error": "Transcript file path not found"})
		}

		content, err := os.ReadFile(localPath)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to read transcript file"})
		}

		return c.SendString(string(content))
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	logrus.Infof("Server starting on %s", addr)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logrus.Info("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

// setupLogging configures the global logrus instance.
func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// loadConfig loads configuration from a YAML file.
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if config.Workers.Count <= 0 {
		config.Workers.Count = 2
	}
	if config.Live.ThrottleSeconds <= 0 {
		config.Live.ThrottleSeconds = 4
	}
	if config.Limits.MaxFileSizeMB <= 0 {
		config.Limits.MaxFileSizeMB = 512
	}

	return &config, nil
}
