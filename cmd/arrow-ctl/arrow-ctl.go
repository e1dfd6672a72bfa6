package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"arrowctl/internal/config"
	"arrowctl/internal/device"
	"arrowctl/internal/gateway"
	"arrowctl/internal/store"
)

func main() {
	var opts struct {
		DatabaseFile string `short:"d" long:"database" description:"SQLite3 database file path" required:"true"`
		Host         string `short:"h" long:"host" description:"Host to bind on" default:"127.0.0.1"`
		Port         string `short:"p" long:"port" description:"Port to bind on" default:"8080"`
		ZmqPub       string `short:"P" long:"zpub" description:"Change bus publish endpoint" default:"tcp://127.0.0.1:5555"`
		ZmqSub       string `short:"S" long:"zsub" description:"Change bus subscribe endpoint" default:"tcp://127.0.0.1:5555"`
		ConfigFile   string `short:"c" long:"config" description:"Machine configuration file" default:"config.json"`
		AssetsDir    string `short:"a" long:"assets" description:"UI bundle directory" default:""`
	}
	if _, err := flags.Parse(&opts); err != nil {
		return
	}

	cfg := config.Load(opts.ConfigFile)

	st, err := store.OpenSqlite(opts.DatabaseFile, opts.ZmqPub, opts.ZmqSub)
	if err != nil {
		log.Fatal("Could not open database: ", err)
	}
	defer st.Close()

	controller := device.New(nil, cfg.Calibration)
	gw := gateway.New(st, controller.Commands(), opts.AssetsDir)
	controller.AttachStatus(gw.Updates())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go controller.Run()
	go gw.Run(ctx)

	server := &http.Server{
		Addr:    opts.Host + ":" + opts.Port,
		Handler: gw.Handler(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Could not serve: ", err)
		}
	}()
	log.Println("listening on", server.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// cooperative shutdown: stop accepting, let in-flight requests finish,
	// terminate the device loop exactly once
	controller.Control() <- device.Terminate
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("[WARN] shutdown incomplete:", err)
	}
	cancel()
}
