package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ethanbaker/meetingroom/internal/api"
	transcription_module "github.com/ethanbaker/meetingroom/internal/api/modules/transcription"
	bookingstore "github.com/ethanbaker/meetingroom/internal/stores/booking"
	jobstore "github.com/ethanbaker/meetingroom/internal/stores/job"
	"github.com/ethanbaker/meetingroom/internal/stores/lock"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/docsync"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/mediastore"
	"github.com/ethanbaker/meetingroom/pkg/metrics"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
	"github.com/ethanbaker/meetingroom/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// requiredAPIKeys must be configured before the API starts
var requiredAPIKeys = []string{"NOTION_API_TOKEN", "NOTION_DATABASE_ID", "TRANSKRIPTOR_TOKEN", "ADMIN_EMAIL"}

// buildAPI constructs every service behind the API. cleanup stops background
// work and closes connections
func buildAPI(ctx context.Context, cfg *utils.Config) (*api.Dependencies, func(), error) {
	log := logging.For("API-MAIN")

	if err := cfg.Require(requiredAPIKeys...); err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*api.Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	location, err := time.LoadLocation(cfg.GetWithDefault("TIMEZONE", "UTC"))
	if err != nil {
		return fail(fmt.Errorf("invalid TIMEZONE: %w", err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Document sync
	schema, err := docsync.LoadSchema(cfg.Get("NOTION_SCHEMA_PATH"))
	if err != nil {
		return fail(err)
	}
	notionTimeout := cfg.GetDurationWithDefault("NOTION_TIMEOUT", 30*time.Second)
	notion := docsync.NewNotionClient(cfg.Get("NOTION_API_TOKEN"), notionTimeout)
	syncer, err := docsync.NewSyncer(notion, cfg.Get("NOTION_DATABASE_ID"), schema)
	if err != nil {
		return fail(err)
	}

	// Stores
	var (
		meetings booking.Store
		jobs     reconciler.JobStore
	)
	if dsn, ok := utils.MySQLDSN(cfg); ok {
		sqlMeetings, err := bookingstore.NewStore(dsn)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { sqlMeetings.Close() })

		sqlJobs, err := jobstore.NewStore(dsn)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { sqlJobs.Close() })

		meetings, jobs = sqlMeetings, sqlJobs
	} else {
		path := cfg.GetWithDefault("MEETINGS_FILE", "data/meetings.json")
		log.Warn().Str("path", path).Msg("MYSQL_DATABASE not set, using file store for meetings and in-memory store for jobs")

		fileMeetings, err := bookingstore.NewFileStore(path)
		if err != nil {
			return fail(err)
		}
		meetings, jobs = fileMeetings, jobstore.NewInMemoryStore()
	}

	// Booking locks
	var locker booking.Locker
	if url := cfg.Get("REDIS_URL"); url != "" {
		client, err := lock.Connect(ctx, url)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { client.Close() })
		// The Notion page is created while the day locks are held
		ttl := lock.TTLFor(cfg.GetDurationWithDefault("REDIS_LOCK_TTL", lock.DefaultTTL), notionTimeout)
		locker = lock.NewRedisLocker(client, ttl)
	}

	bookings, err := booking.NewService(booking.ServiceOptions{
		Store:      meetings,
		Mirror:     syncer,
		Locker:     locker,
		AdminEmail: cfg.Get("ADMIN_EMAIL"),
		Location:   location,
		Metrics:    m,
	})
	if err != nil {
		return fail(err)
	}

	// Transcription
	provider, err := transcription.NewClient(transcription.Options{
		BaseURL: cfg.GetWithDefault("TRANSKRIPTOR_BASE_URL", transcription.DefaultBaseURL),
		Token:   cfg.Get("TRANSKRIPTOR_TOKEN"),
		Timeout: cfg.GetDurationWithDefault("TRANSCRIPTION_TIMEOUT", transcription.DefaultTimeout),
	})
	if err != nil {
		return fail(err)
	}

	rec, err := reconciler.New(reconciler.Options{
		Store:         jobs,
		Provider:      provider,
		Sink:          syncer,
		Meetings:      bookings,
		PollInterval:  cfg.GetDurationWithDefault("POLL_INTERVAL", reconciler.DefaultPollInterval),
		Retention:     cfg.GetDurationWithDefault("JOB_RETENTION", reconciler.DefaultRetention),
		PruneSchedule: cfg.GetWithDefault("JOB_PRUNE_SCHEDULE", reconciler.DefaultPruneSchedule),
		Metrics:       m,
	})
	if err != nil {
		return fail(err)
	}
	if err := rec.Start(); err != nil {
		return fail(err)
	}
	closers = append(closers, rec.Stop)

	if err := rec.Resume(ctx); err != nil {
		return fail(err)
	}
	bookings.OnCancel(rec.CancelMeeting)

	var archive mediastore.Archive
	if bucket := cfg.Get("S3_BUCKET"); bucket != "" {
		archive, err = mediastore.NewS3Archive(ctx, mediastore.S3Config{
			Region:    cfg.Get("S3_REGION"),
			Bucket:    bucket,
			Directory: cfg.Get("S3_DIRECTORY"),
		})
		if err != nil {
			return fail(err)
		}
	}

	transcriptions, err := transcription_module.NewService(transcription_module.ServiceOptions{
		Provider: provider,
		Jobs:     rec,
		Sink:     syncer,
		Meetings: bookings,
		Archive:  archive,
	})
	if err != nil {
		return fail(err)
	}

	return &api.Dependencies{
		Bookings:      bookings,
		Transcription: transcriptions,
		Gatherer:      registry,
	}, cleanup, nil
}
