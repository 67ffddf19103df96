// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Webben is a simple HTTP/1.1 benchmarking and probing tool.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var (
	C int      // concurrent connections
	R int      // requests per connection
	U *url.URL // target url
	M string   // http method
	H []string // extra header fields
	B string   // http content
	K int      // chunk size. 0 means sized content
	T time.Duration
)

// webben -c 100 -r 1000 -u http://localhost:8080/index.html
// webben -c 1 -r 1 -m POST -b hello -k 2 -u http://localhost:8080/upload/hello.txt

func main() {
	var u string
	pflag.IntVarP(&C, "conns", "c", 10, "concurrent connections")
	pflag.IntVarP(&R, "requests", "r", 100, "requests per connection")
	pflag.StringVarP(&u, "url", "u", "http://localhost:8080/", "target url")
	pflag.StringVarP(&M, "method", "m", "GET", "http method")
	pflag.StringArrayVarP(&H, "header", "H", nil, "extra header field, like \"Name: value\"")
	pflag.StringVarP(&B, "body", "b", "", "http content")
	pflag.IntVarP(&K, "chunk", "k", 0, "send the content chunked, in chunks of this size")
	pflag.DurationVarP(&T, "timeout", "t", 10*time.Second, "i/o timeout")
	pflag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{Name: "webben", Output: os.Stderr})
	var err error
	if U, err = url.Parse(u); err != nil {
		logger.Error("bad url", "error", err)
		os.Exit(1)
	}
	if U.Scheme != "http" {
		logger.Error("only http urls are supported", "url", u)
		os.Exit(1)
	}
	if C <= 0 || R <= 0 {
		logger.Error("conns and requests must be positive")
		os.Exit(1)
	}

	request := makeRequest()
	clients := make([]*http1Client, C)
	group, ctx := errgroup.WithContext(context.Background())
	start := time.Now()
	for i := range clients {
		clients[i] = newHTTP1Client(U.Host, request, R, T)
		client := clients[i]
		group.Go(func() error { return client.bench(ctx) })
	}
	err = group.Wait()
	elapsed := time.Since(start)

	var report benchReport
	for _, client := range clients {
		report.add(client)
	}
	fmt.Println(report.String(elapsed))
	if err != nil {
		logger.Error("benchmark aborted", "error", err)
		os.Exit(1)
	}
}
