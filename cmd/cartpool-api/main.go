// README: Entry point; loads config, wires modules, starts HTTP server and snapshot saver.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cartpool/internal/config"
	"cartpool/internal/geocode"
	httptransport "cartpool/internal/http"
	"cartpool/internal/infra"
	"cartpool/internal/modules/catalog"
	"cartpool/internal/modules/lead"
	"cartpool/internal/modules/market"
	"cartpool/internal/modules/perm"
	"cartpool/internal/modules/session"
	"cartpool/internal/modules/users"
	"cartpool/internal/persist"
	"cartpool/internal/timeadj"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := market.NewStore(log)
	cat := catalog.New()
	dir := users.NewDirectory()
	if err := seedUsers(dir); err != nil {
		log.Fatal().Err(err).Msg("seed users")
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	sessions := session.NewManager(redisClient, cfg.Session.TTL)

	var geocoder *geocode.Geocoder
	if cfg.Maps.APIKey != "" {
		geocoder, err = geocode.New(cfg.Maps.APIKey, redisClient, log)
		if err != nil {
			log.Fatal().Err(err).Msg("geocoder init")
		}
	} else {
		log.Info().Msg("GOOGLE_MAPS_API_KEY not set, geocoding disabled")
	}

	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db init")
		}
		defer dbPool.Close()

		statusStore := persist.NewStatusStore(dbPool, log)
		if err := statusStore.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("status table init")
		}
		snap, err := statusStore.LoadLatest(ctx)
		switch {
		case err == nil:
			store.Restore(snap)
		case errors.Is(err, persist.ErrNoSnapshot):
			log.Info().Msg("no stored snapshot, starting empty")
		default:
			log.Fatal().Err(err).Msg("load snapshot")
		}

		go statusStore.RunSaver(ctx, store, cfg.DB.StatusSaveInterval)
	} else {
		log.Info().Msg("CARTPOOL_DB_DSN not set, snapshot persistence disabled")
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Store:        store,
		Catalog:      cat,
		Users:        dir,
		Sessions:     sessions,
		Leads:        lead.NewStore(log),
		Perm:         perm.NewChecker(store),
		TimeAdj:      timeadj.New(),
		Geocoder:     geocoder,
		MinBasketSum: cfg.Pricing.MinBasketSum,
		Log:          log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server")
	}
}

// seedUsers registers the demo accounts. Real deployments replace this
// with provisioning through the lead funnel.
func seedUsers(dir *users.Directory) error {
	seeds := []struct {
		profile  users.Profile
		password string
	}{
		{users.Profile{ID: 1, Login: "alice", FirstName: "Alice", LastName: "Meyer", Email: "alice@example.com", Phone: "+49 30 1111111", Timezone: "Europe/Berlin"}, "alice-pw"},
		{users.Profile{ID: 2, Login: "bob", FirstName: "Bob", LastName: "Krause", Email: "bob@example.com", Phone: "+49 30 2222222", Timezone: "Europe/Berlin"}, "bob-pw"},
		{users.Profile{ID: 3, Login: "carol", FirstName: "Carol", LastName: "Schulz", CompanyName: "Schulz GmbH", Email: "carol@example.com", Timezone: "Europe/Berlin"}, "carol-pw"},
	}
	for _, s := range seeds {
		if err := dir.Add(s.profile, s.password); err != nil {
			return err
		}
	}
	return nil
}
