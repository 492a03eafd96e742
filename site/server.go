// Package main serves a Markdown directory as a local documentation site
// for trying the theme runtime against.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/f4ah6o/youlog-go/internal/devsite"
)

func main() {
	port := flag.Int("port", 8080, "Port to serve on")
	dir := flag.String("dir", ".", "Directory of Markdown pages to serve")
	base := flag.String("base", "/docs/", "Path prefix of every page")
	title := flag.String("title", "Docs", "Site title")
	allowAll := flag.Bool("allow-all", false, "Accept search requests from any origin")
	flag.Parse()

	site, err := devsite.New(devsite.Options{Dir: *dir, Base: *base, Title: *title, AllowAll: *allowAll})
	if err != nil {
		log.Fatalf("Failed to build site: %v", err)
	}

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           site.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	fmt.Printf("🌐 Serving %d pages at http://localhost%s%s\n", len(site.Links()), addr, *base)
	fmt.Println("Press Ctrl+C to stop")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
