package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/nomasters/flatstore"
	"github.com/nomasters/flatstore/server"
	"github.com/spf13/cobra"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", getAddr(), "Server address (host:port)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve <dir>",
	Short: "Run the flatstore TCP front-end over a store directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		db, err := openStore(args[0], flatstore.ReadWrite)
		if err != nil {
			return err
		}

		srv, err := server.New(&server.Config{DB: db, Logger: log})
		if err != nil {
			db.Close()
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())

		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.ListenAndServe(ctx, serveAddr)
		}()

		if !quiet {
			fmt.Printf("listening on: %s\n", serveAddr)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt)

		select {
		case err := <-errChan:
			cancel()
			db.Close()
			return err
		case <-sigChan:
			if !quiet {
				fmt.Println("\nshutting down...")
			}
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorf("shutdown: %v", err)
			}
			<-errChan
			return db.Close()
		}
	},
}
