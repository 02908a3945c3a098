package app

import (
	"context"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"treatment-review/internal/common/aws"
	"treatment-review/internal/common/config"
	"treatment-review/internal/common/database"
	apphttp "treatment-review/internal/common/http"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/common/observability"
	"treatment-review/internal/completion"
	"treatment-review/internal/ingest"
	"treatment-review/internal/notify"
	"treatment-review/internal/pipeline"
	"treatment-review/internal/questions"
	"treatment-review/internal/results"
)

// Resources are the long-lived clients Build opened. Close releases them.
type Resources struct {
	Observability *observability.Observability
	Redis         *database.RedisClient
	Postgres      *database.PostgresClient
	Elasticsearch *database.ElasticsearchClient
}

func (r *Resources) Close() {
	if r == nil {
		return
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.Postgres != nil {
		_ = r.Postgres.Close()
	}
	if r.Observability != nil {
		r.Observability.Shutdown()
	}
}

// Build wires an App from configuration. The completion client is the
// OpenAI transport wrapped in retry and, when enabled, the redis cache.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, *Resources, error) {
	res := &Resources{}
	fail := func(err error) (*App, *Resources, error) {
		res.Close()
		return nil, nil, err
	}

	library, err := questions.LoadFile(cfg.Pipeline.LibraryPath, questions.MatchPolicy(cfg.Pipeline.MatchPolicy))
	if err != nil {
		return fail(err)
	}
	log.Info("Follow-up question library loaded", map[string]interface{}{
		"path":     cfg.Pipeline.LibraryPath,
		"keywords": library.Len(),
	})

	policy, err := pipeline.ParseBackfillPolicy(cfg.Pipeline.BackfillPolicy)
	if err != nil {
		return fail(err)
	}

	client, err := buildCompletionClient(ctx, cfg, log, res)
	if err != nil {
		return fail(err)
	}
	adapter := completion.NewAdapter(client, config.GetDuration(cfg.Completion.Timeout), log)

	opts := pipeline.Options{
		Library:        library,
		BackfillPolicy: policy,
		Logger:         log,
	}
	if cfg.Tracing.Enabled {
		res.Observability = observability.NewWithOptions(observability.Options{
			ServiceName:    cfg.Tracing.ServiceName,
			SampleRatio:    cfg.Tracing.SampleRatio,
			SpanProcessors: []sdktrace.SpanProcessor{observability.NewLogSpanProcessor(log)},
		})
		opts.Tracer = res.Observability.Tracer()
		opts.OnStage = res.Observability.RecordStage
	}

	writer, err := results.NewFileWriter()
	if err != nil {
		return fail(err)
	}

	sinks, err := buildSinks(ctx, cfg, log, res)
	if err != nil {
		return fail(err)
	}

	deps := Deps{
		Reader:   ingest.NewReader(log),
		Pipeline: pipeline.New(adapter, opts),
		Writer:   writer,
		Sinks:    sinks,
		Model:    cfg.Completion.Model,
		Logger:   log,
	}
	if res.Observability != nil {
		deps.Observer = res.Observability
	}
	return New(deps), res, nil
}

func buildCompletionClient(ctx context.Context, cfg *config.Config, log logger.Logger, res *Resources) (completion.Client, error) {
	cc := cfg.Completion
	openai := completion.NewOpenAI(completion.OpenAIConfig{
		BaseURL:     cc.BaseURL,
		APIKey:      cc.APIKey,
		Model:       cc.Model,
		Temperature: cc.Temperature,
		JSONMode:    cc.JSONMode,
	}, apphttp.NewClient(0))

	mws := []completion.Middleware{}
	if cfg.Cache.Enabled {
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, fmt.Errorf("reply cache: %w", err)
		}
		if err := rdb.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("reply cache: %w", err)
		}
		res.Redis = rdb
		mws = append(mws, completion.Cached(rdb, cc.Model, cfg.Cache.KeyPrefix, time.Duration(cfg.Cache.TTL)*time.Second, log))
	}
	mws = append(mws, completion.Retry(cc.MaxRetries+1, config.GetDuration(cc.RetryBaseDelay)))

	return completion.Chain(openai, mws...), nil
}

func buildSinks(ctx context.Context, cfg *config.Config, log logger.Logger, res *Resources) ([]results.Sink, error) {
	var sinks []results.Sink

	if cfg.Archive.Postgres {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		res.Postgres = pg
		archive := results.NewPostgresArchive(pg)
		if err := archive.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, archive)
	}

	if cfg.Archive.Elasticsearch {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		res.Elasticsearch = es
		sinks = append(sinks, results.NewElasticsearchIndex(es, cfg.Archive.Index))
	}

	if cfg.Notifications.Enabled {
		n := cfg.Notifications
		var publisher notify.Publisher
		var mailer notify.Mailer
		if n.TopicARN != "" {
			snsClient, err := aws.NewSNSClient(ctx, n.Region)
			if err != nil {
				return nil, fmt.Errorf("sns client: %w", err)
			}
			publisher = snsClient
		}
		if n.FromEmail != "" && len(n.Recipients) > 0 {
			sesClient, err := aws.NewSESClient(ctx, n.Region)
			if err != nil {
				return nil, fmt.Errorf("ses client: %w", err)
			}
			mailer = sesClient
		}
		sinks = append(sinks, notify.New(notify.Config{
			TopicARN:   n.TopicARN,
			FromEmail:  n.FromEmail,
			Recipients: n.Recipients,
		}, publisher, mailer, log))
	}

	for _, s := range sinks {
		log.Info("Sink enabled", map[string]interface{}{"sink": s.Name()})
	}
	return sinks, nil
}
