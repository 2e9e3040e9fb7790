/*
Command termsuggest builds a prefix suggestion index from full-text corpora and
queries it.

# Usage

Build the index from every configured corpus:

	termsuggest -config termsuggest.toml build

Build and log every indexed term:

	termsuggest -config termsuggest.toml build -v

Look up completions of a partial word (longer than 2 characters):

	termsuggest -config termsuggest.toml search sol

The single-letter modes B, BV and S are accepted as aliases of build, build -v
and search.

# Configuration

	[index]
	provider = "disk"       # memory, disk, redis, elasticsearch
	namespace = "termsuggest"
	dir = "./suggest"
	max_age_days = 7

	[discovery]
	root = "/srv/corpora"
	names = ["product", "content", "file", "globalreference"]

	[[corpus]]
	name = "catalog"
	type = "elasticsearch"
	index = "products"

An index older than max_age_days is reset before the build. Corpora are merged:
the first one that builds replaces the index content and the others are appended.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
