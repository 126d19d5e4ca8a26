package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/tacint/sparrow/internal/pkg/diarizer"
	"github.com/tacint/sparrow/internal/pkg/extractor"
	"github.com/tacint/sparrow/internal/pkg/pipeline"
	"github.com/tacint/sparrow/internal/pkg/postgres"
	"github.com/tacint/sparrow/internal/pkg/transcriber"
	"github.com/tacint/sparrow/internal/pkg/translator"
	"github.com/tacint/sparrow/internal/pkg/utils"
	"github.com/tacint/sparrow/internal/pkg/worker"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 5)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(data.GueClient)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.Filer, err = miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db
	data.Runner = initRunner(cfg, db)

	printBanner()

	go utils.RunPerfEndpoint()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func initRunner(cfg *viper.Viper, db *postgres.DB) *pipeline.Runner {
	pd := &pipeline.Data{AnalysisWriter: db, StepStore: db}
	var err error
	pd.Transcriber, err = transcriber.NewClient(cfg.GetString("stt.url"), cfg.GetString("stt.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
	}
	pd.Diarizer, err = diarizer.NewClient(cfg.GetString("diarizer.url"), cfg.GetString("diarizer.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init diarizer")
	}
	pd.Translator, err = translator.NewClient(cfg.GetString("llm.url"), cfg.GetString("llm.key"),
		cfg.GetString("llm.model"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init translator")
	}
	pd.Extractor, err = extractor.NewClient(cfg.GetString("llm.url"), cfg.GetString("llm.key"),
		cfg.GetString("llm.model"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init extractor")
	}
	pd.Timeouts = pipeline.Timeouts{
		Transcribe: stepTimeout(cfg, "transcribe"),
		Translate:  stepTimeout(cfg, "translate"),
		Diarize:    stepTimeout(cfg, "diarize"),
		Extract:    stepTimeout(cfg, "extract"),
		Persist:    stepTimeout(cfg, "persist"),
	}
	res, err := pipeline.NewRunner(pd)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init pipeline")
	}
	return res
}

func stepTimeout(cfg *viper.Viper, name string) time.Duration {
	res := defaultV(cfg.GetDuration("step.timeout."+name), time.Minute*2)
	goapp.Log.Info().Str("step", name).Dur("timeout", res).Msg("cfg")
	return res
}

func defaultV[T comparable](v, def T) T {
	var empty T
	if v == empty {
		return def
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
     _________  ____ __________  ____ _      __
    / ___/ __ \/ __ ` + "`" + `/ ___/ ___// __ \ | /| / /
   (__  ) /_/ / /_/ / /  / /   / /_/ / |/ |/ /
  /____/ .___/\__,_/_/  /_/    \____/|__/|__/
      /_/
                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/     v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/tacint/sparrow"))
}
