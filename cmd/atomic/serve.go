package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/transport"
	"github.com/atomic-vcs/atomic/internal/transport/httpcarrier"
	"github.com/atomic-vcs/atomic/internal/transport/sshcarrier"
)

var serveHTTPAddr string

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "serve this repository's transport verbs over HTTP",
	RunE:  runServeHTTP,
}

var serveSSHCmd = &cobra.Command{
	Use:    "serve-ssh",
	Short:  "serve this repository's transport verbs over stdin/stdout (invoked remotely by the ssh carrier)",
	Hidden: true,
	RunE:   runServeSSH,
}

func init() {
	serveHTTPCmd.Flags().StringVar(&serveHTTPAddr, "addr", ":9418", "address to listen on")
	rootCmd.AddCommand(serveHTTPCmd)
	rootCmd.AddCommand(serveSSHCmd)
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	server := transport.New(r.Env, r.Store)
	handler := httpcarrier.NewHandler(server)

	logger.Infof("serving %s over http on %s", r.Root, serveHTTPAddr)
	return http.ListenAndServe(serveHTTPAddr, handler)
}

type stdioConn struct {
	io.Reader
	io.Writer
}

func runServeSSH(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	server := transport.New(r.Env, r.Store)
	fmt.Fprintln(os.Stderr, "serving", r.Root, "over ssh transport")
	return sshcarrier.ServeConn(server, stdioConn{Reader: os.Stdin, Writer: os.Stdout})
}
