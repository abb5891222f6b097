package website

import (
	"context"
	"errors"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"time"

	"git.cdm.community/cdm/cdm/src/blog"
	"git.cdm.community/cdm/cdm/src/bugtracker"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/jobs"
	"git.cdm.community/cdm/cdm/src/licenses"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/privatemsg"
	"git.cdm.community/cdm/cdm/src/rerender"
	"git.cdm.community/cdm/cdm/src/snippets"
	"git.cdm.community/cdm/cdm/src/urls"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Every kind of stored rendered content.
func RerenderHandlers() []rerender.Handler {
	var handlers []rerender.Handler
	handlers = append(handlers, blog.RerenderHandlers...)
	handlers = append(handlers, bugtracker.RerenderHandlers...)
	handlers = append(handlers, privatemsg.RerenderHandlers...)
	handlers = append(handlers, snippets.RerenderHandlers...)
	handlers = append(handlers, licenses.RerenderHandlers...)
	return handlers
}

var WebsiteCommand = &cobra.Command{
	Short: "Run the CDM website",
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Msg("Hello, CDM!")

		urls.SetGlobalBaseUrl(config.Config.BaseUrl)

		var wg sync.WaitGroup

		conn := db.NewConnPool()

		// Workers subscribe before the version check so they see its event.
		broadcaster := rerender.NewBroadcaster()
		rerenderJobs := rerender.StartWorkers(conn, broadcaster, RerenderHandlers())
		if _, err := rerender.CheckEngineVersion(context.Background(), conn, broadcaster); err != nil {
			logging.Error().Err(err).Msg("Failed to check the render engine version")
		}

		dispatcher := notify.NewDispatcher(config.Config.Notify, notify.NewSender(config.Config.Email))

		// Start background jobs
		wg.Add(1)
		backgroundJobs := append(jobs.Jobs{
			privatemsg.PeriodicallyDeleteDeletedMessages(conn),
			dispatcher.Run(),
		}, rerenderJobs...)

		// Create HTTP server
		wg.Add(1)
		server := http.Server{
			Addr:    config.Config.Addr,
			Handler: NewWebsiteRoutes(conn),
		}
		go func() {
			logging.Info().Str("addr", config.Config.Addr).Msg("Serving the website")
			serverErr := server.ListenAndServe()
			if !errors.Is(serverErr, http.ErrServerClosed) {
				logging.Error().Err(serverErr).Msg("Server shut down unexpectedly")
			}
			// The wg.Done() happens in the shutdown logic below.
		}()

		// Start up the private HTTP server for pprof and metrics. Because it
		// uses the default mux, and we import pprof, it will automatically
		// have all the pprof routes.
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			// We don't bother to gracefully shut this down.
			log.Println(http.ListenAndServe(config.Config.PrivateAddr, nil))
		}()

		// Wait for SIGINT in the background and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		go func() {
			<-signals // First SIGINT (start shutdown)
			logging.Info().Msg("Shutting down the website")

			const timeout = 10 * time.Second

			go func() {
				logging.Info().Msg("Shutting down background jobs...")
				broadcaster.Close()
				unfinished := backgroundJobs.CancelAndWait(timeout)
				if len(unfinished) == 0 {
					logging.Info().Msg("Background jobs closed gracefully")
				} else {
					logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
				}
				wg.Done()
			}()

			// Gracefully shut down the HTTP server
			go func() {
				timeoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				err := server.Shutdown(timeoutCtx)
				if err != nil {
					logging.Warn().Err(err).Msg("Server did not shut down gracefully")
				}
				wg.Done()
			}()

			<-signals // Second SIGINT (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the website")
			os.Exit(1)
		}()

		// Wait for all of the above to finish, then exit
		wg.Wait()
	},
}
