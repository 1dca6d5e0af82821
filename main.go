// quicpulse is a command-line HTTP client: a terse request grammar on the
// command line, structured HTTP/WebSocket/gRPC/HTTP-3/Unix-socket requests
// on the wire, and streaming, benchmarking, fuzzing, and HAR replay on top
// of one shared execution engine.
//
// Invocation flow:
//  1. Parse flags and the [METHOD] URL [ITEM...] positional grammar.
//  2. Expand magic tags, classify items, normalize the URL.
//  3. Fold items into a request configuration (headers, body, query).
//  4. Resolve authentication (flags, then .netrc).
//  5. Dispatch through the engine, or hand the template to a driver.
//  6. Render, download, or stream the response; map errors to exit codes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/quicpulse/quicpulse/auth"
	"github.com/quicpulse/quicpulse/bench"
	"github.com/quicpulse/quicpulse/cli"
	"github.com/quicpulse/quicpulse/client"
	"github.com/quicpulse/quicpulse/config"
	"github.com/quicpulse/quicpulse/download"
	"github.com/quicpulse/quicpulse/fuzz"
	"github.com/quicpulse/quicpulse/har"
	"github.com/quicpulse/quicpulse/input"
	"github.com/quicpulse/quicpulse/interrupt"
	"github.com/quicpulse/quicpulse/logger"
	"github.com/quicpulse/quicpulse/output"
	"github.com/quicpulse/quicpulse/request"
	"github.com/quicpulse/quicpulse/scripting"
	"github.com/quicpulse/quicpulse/session"
	"github.com/quicpulse/quicpulse/status"
)

const version = "1.0.0"

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(argv []string) status.ExitStatus {
	interrupt.Install()

	args, err := cli.Parse(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return status.Error
	}

	cfg := config.Default()
	if args.ConfigFile != "" {
		cfg, err = config.Load(args.ConfigFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return status.Error
		}
	}
	if args.DefaultScheme == "" {
		args.DefaultScheme = cfg.DefaultScheme
	}

	log := logger.New(logger.FromVerbosity(args.Quiet, args.Verbose))

	exit, err := dispatch(context.Background(), args, cfg, log)
	if err != nil {
		return reportError(err, args)
	}
	return exit
}

func reportError(err error, args *cli.Args) status.ExitStatus {
	var assertErr *scripting.AssertionError
	if errors.As(err, &assertErr) {
		fmt.Fprintln(os.Stderr, "Error:", assertErr.Error())
		return status.AssertionFailed
	}
	if args.Quiet < 2 {
		if args.Debug {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return status.ExitFor(err)
}

func dispatch(ctx context.Context, args *cli.Args, cfg *config.Config, log *logger.Logger) (status.ExitStatus, error) {
	// HAR replay needs no positional URL.
	if args.HARReplay != "" {
		return runHARReplay(ctx, args, cfg)
	}

	processed, err := cli.Process(args, args.DefaultScheme)
	if err != nil {
		return status.Error, err
	}
	log.Debugf("%s %s (%d items)", processed.Method, processed.URL, len(processed.Items))

	reqCfg, err := request.FromItems(processed.Items, args.JSON && !args.Form)
	if err != nil {
		return status.Error, err
	}

	switch {
	case args.Bench:
		return runBench(ctx, args, cfg, processed, reqCfg)
	case args.Fuzz:
		return runFuzz(ctx, args, cfg, processed, reqCfg)
	default:
		return runRequest(ctx, args, cfg, processed, reqCfg, log)
	}
}

// clientOptions translates flags into engine policy.
func clientOptions(args *cli.Args, cfg *config.Config) client.Options {
	timeout := args.Timeout
	if timeout == 0 {
		timeout = cfg.TimeoutSeconds
	}
	verify := args.Verify
	if verify == "yes" && cfg.Verify != "" {
		verify = cfg.Verify
	}
	return client.Options{
		Timeout:         time.Duration(timeout * float64(time.Second)),
		FollowRedirects: args.Follow,
		MaxRedirects:    args.MaxRedirects,
		Verify:          verify,
		CertFile:        args.Cert,
		KeyFile:         args.CertKey,
		SSLVersion:      args.SSLVersion,
		Ciphers:         args.Ciphers,
		Impersonate:     args.Impersonate,
		Proxies:         args.Proxies,
		SocksProxy:      args.Socks,
		Resolve:         args.Resolve,
		HTTPVersion:     args.HTTPVersion,
		HTTP3:           args.HTTP3,
		UnixSocket:      args.UnixSocket,
	}
}

// buildPlan materializes the request body and resolves authentication.
func buildPlan(ctx context.Context, args *cli.Args, processed *cli.Processed, reqCfg *request.Config) (*client.Plan, error) {
	target, err := url.Parse(processed.URL)
	if err != nil {
		return nil, status.Wrap(status.KindParse, err, "parse URL")
	}
	if qs := reqCfg.QueryString(); qs != "" {
		if target.RawQuery != "" {
			target.RawQuery += "&" + qs
		} else {
			target.RawQuery = qs
		}
	}

	plan := &client.Plan{
		Method:  processed.Method,
		URL:     target,
		Headers: reqCfg.Headers,
		Chunked: args.Chunked,
	}

	switch {
	case args.Raw != "":
		plan.Body = []byte(args.Raw)
	case reqCfg.Kind == request.BodyMultipart || (args.Multipart && reqCfg.HasBody()):
		body, ctype, err := reqCfg.EncodeMultipart(args.Boundary)
		if err != nil {
			return nil, err
		}
		plan.Body = body
		plan.ContentType = ctype
		plan.Multipart = true
	case reqCfg.Kind == request.BodyJSON:
		body, err := reqCfg.JSONBytes()
		if err != nil {
			return nil, err
		}
		plan.Body = body
		plan.ContentType = "application/json"
	case reqCfg.Kind == request.BodyForm:
		plan.Body = reqCfg.FormBytes()
		plan.ContentType = "application/x-www-form-urlencoded"
	}

	if args.Compress > 0 && len(plan.Body) > 0 && !plan.Multipart {
		compressed, applied, err := request.CompressDeflate(plan.Body, args.Compress > 1)
		if err != nil {
			return nil, err
		}
		if applied {
			plan.Body = compressed
			plan.Headers.Set("Content-Encoding", "deflate")
		}
	}

	if err := resolveAuth(ctx, args, plan, target); err != nil {
		return nil, err
	}
	return plan, nil
}

// resolveAuth applies -a/-A, falling back to .netrc for basic credentials.
func resolveAuth(ctx context.Context, args *cli.Args, plan *client.Plan, target *url.URL) error {
	authType := auth.Type(strings.ToLower(args.AuthType))
	if args.Auth != "" && authType == auth.TypeNone {
		authType = auth.TypeBasic
	}

	switch authType {
	case auth.TypeNone:
		if !args.IgnoreNetrc {
			if creds, ok := auth.NetrcCredentials(target.Hostname()); ok {
				plan.AuthType = auth.TypeBasic
				plan.Creds = creds
			}
		}
	case auth.TypeBasic, auth.TypeDigest, auth.TypeBearer:
		creds, err := auth.ParseCredentials(args.Auth, authType)
		if err != nil {
			return err
		}
		plan.AuthType = authType
		plan.Creds = creds
	case auth.TypeSigV4:
		signer, err := auth.NewSigV4Signer(ctx, auth.SigV4Options{
			Credentials: args.Auth,
			Profile:     args.AWSProfile,
			Region:      args.AWSRegion,
			Service:     args.AWSService,
		}, target.Host)
		if err != nil {
			return err
		}
		plan.AuthType = auth.TypeSigV4
		plan.Signer = signer
	default:
		return status.Errorf(status.KindArgument, "unknown auth type %q", args.AuthType)
	}
	return nil
}

func runRequest(ctx context.Context, args *cli.Args, cfg *config.Config, processed *cli.Processed, reqCfg *request.Config, log *logger.Logger) (status.ExitStatus, error) {
	plan, err := buildPlan(ctx, args, processed, reqCfg)
	if err != nil {
		return status.Error, err
	}

	// Named sessions contribute headers and cookies, then absorb what the
	// invocation sends.
	var sess *session.Session
	var sessPath string
	if args.Session != "" {
		sessPath = session.Path(cfg.ResolveSessionsDir(), plan.URL.Host, args.Session)
		sess, err = session.Load(sessPath, version)
		if err != nil {
			return status.Error, err
		}
		applySession(sess, plan)
	}

	engine, err := client.New(clientOptions(args, cfg))
	if err != nil {
		return status.Error, err
	}
	defer engine.CloseIdleConnections()

	if args.WSRequested() || plan.URL.Scheme == "ws" || plan.URL.Scheme == "wss" {
		err := engine.ExecuteWebSocket(ctx, plan.URL, plan.Headers.ToHTTPHeader(), client.WSOptions{
			Send:         args.WSSend,
			Listen:       args.WSListen,
			Subprotocol:  args.WSSubprotocol,
			PingInterval: time.Duration(args.WSPingSecs * float64(time.Second)),
		})
		if err != nil {
			return status.Error, err
		}
		return status.Success, nil
	}

	if args.GRPC {
		result, err := engine.ExecuteGRPC(ctx, plan.URL, plan.Headers, plan.Body)
		if err != nil {
			return status.Error, err
		}
		os.Stdout.Write(result.Payload)
		fmt.Println()
		return status.Success, nil
	}

	downloader := downloadFor(args)
	if downloader != nil {
		dlHeaders := make(http.Header)
		downloader.PreRequest(dlHeaders)
		for key := range dlHeaders {
			plan.Headers.Set(key, dlHeaders.Get(key))
		}
	}

	stdoutTTY := isatty.IsTerminal(os.Stdout.Fd())
	printer := &output.Printer{
		W:         os.Stdout,
		Color:     stdoutTTY && !args.NoColor,
		StdoutTTY: stdoutTTY,
	}
	parts, err := printParts(args, stdoutTTY)
	if err != nil {
		return status.Error, err
	}

	printer.PrintRequest(plan, parts)

	started := time.Now()
	resp, err := engine.Execute(ctx, plan)
	if err != nil {
		return status.Error, err
	}
	elapsed := time.Since(started)
	log.Debugf("%d %s in %dms", resp.Status, plan.URL.Host, elapsed.Milliseconds())

	if args.All {
		for _, im := range resp.Intermediates {
			printer.PrintIntermediate(im)
		}
	}

	if sess != nil {
		updateSession(sess, plan, resp)
		if err := sess.Save(sessPath); err != nil {
			return status.Error, err
		}
	}

	switch {
	case downloader != nil:
		if _, err := downloader.Start(plan.URL.String(), resp.Header, resp.Status); err != nil {
			resp.Body.Close()
			return status.Error, err
		}
		written, err := downloader.Stream(resp.Body)
		resp.Body.Close()
		if err != nil {
			return status.Error, err
		}
		if args.Quiet == 0 {
			fmt.Fprintln(os.Stderr, downloader.Summary(written, time.Since(started)))
		}
	case args.Stream:
		if parts.ResponseHeaders {
			if err := printer.PrintResponse(&client.Response{
				Status: resp.Status, Proto: resp.Proto, Header: resp.Header,
				Body: nopBody{},
			}, output.Parts{ResponseHeaders: true}, 0); err != nil {
				return status.Error, err
			}
		}
		if err := output.Stream(os.Stdout, resp); err != nil {
			return status.Error, err
		}
	case args.Script != "":
		body, _, err := output.ReadBodyLimited(resp)
		if err != nil {
			return status.Error, err
		}
		evaluator, err := scripting.New()
		if err != nil {
			return status.Error, err
		}
		if err := evaluator.RunSource(args.Script, resp.Status, resp.Header, body); err != nil {
			return status.Error, err
		}
	default:
		if err := printer.PrintResponse(resp, parts, elapsed.Milliseconds()); err != nil {
			return status.Error, err
		}
	}

	return status.FromHTTPStatus(resp.Status, args.CheckStatus), nil
}

// nopBody satisfies the response shape when only headers print.
type nopBody struct{}

func (nopBody) Read([]byte) (int, error) { return 0, io.EOF }
func (nopBody) Close() error             { return nil }

func printParts(args *cli.Args, stdoutTTY bool) (output.Parts, error) {
	if args.Print != "" {
		return output.ParseParts(args.Print)
	}
	if args.HeadersOnly {
		return output.Parts{ResponseHeaders: true}, nil
	}
	if args.BodyOnly {
		return output.Parts{ResponseBody: true}, nil
	}
	if args.Quiet > 0 {
		return output.Parts{}, nil
	}
	return output.DefaultParts(args.Verbose, stdoutTTY), nil
}

func downloadFor(args *cli.Args) *download.Downloader {
	if !args.Download && args.Output == "" {
		return nil
	}
	return &download.Downloader{
		OutputPath: args.Output,
		Resume:     args.Continue,
		Quiet:      args.Quiet > 0,
	}
}

func applySession(sess *session.Session, plan *client.Plan) {
	for _, h := range sess.Headers {
		if !plan.Headers.Has(h.Name) {
			plan.Headers.Add(h.Name, h.Value)
		}
	}
	secure := plan.URL.Scheme == "https"
	cookies := sess.CookiesFor(plan.URL.Hostname(), plan.URL.Path, secure)
	if len(cookies) > 0 && !plan.Headers.Has("Cookie") {
		pairs := make([]string, 0, len(cookies))
		for _, c := range cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		plan.Headers.Add("Cookie", strings.Join(pairs, "; "))
	}
}

func updateSession(sess *session.Session, plan *client.Plan, resp *client.Response) {
	plan.Headers.Each(func(k, v string) {
		sess.SetHeader(k, v)
	})
	for _, raw := range resp.Header.Values("Set-Cookie") {
		for _, one := range session.SplitSetCookies(raw) {
			if c, ok := parseSetCookie(one, plan.URL.Hostname()); ok {
				sess.SetCookie(c)
			}
		}
	}
}

// parseSetCookie converts one Set-Cookie string into a session cookie.
func parseSetCookie(raw, defaultDomain string) (session.Cookie, bool) {
	parts := strings.Split(raw, ";")
	name, value, ok := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !ok || name == "" {
		return session.Cookie{}, false
	}
	c := session.Cookie{Name: name, Value: value, Domain: defaultDomain}
	for _, attr := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(attr), "=")
		switch strings.ToLower(key) {
		case "domain":
			c.Domain = val
		case "path":
			c.Path = val
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "max-age":
			if secs, err := time.ParseDuration(val + "s"); err == nil {
				c.Expires = time.Now().Add(secs).Unix()
			}
		case "expires":
			if t, err := time.Parse(time.RFC1123, val); err == nil {
				c.Expires = t.Unix()
			}
		}
	}
	return c, true
}

func runBench(ctx context.Context, args *cli.Args, cfg *config.Config, processed *cli.Processed, reqCfg *request.Config) (status.ExitStatus, error) {
	plan, err := buildPlan(ctx, args, processed, reqCfg)
	if err != nil {
		return status.Error, err
	}
	engine, err := client.New(clientOptions(args, cfg))
	if err != nil {
		return status.Error, err
	}
	defer engine.CloseIdleConnections()

	requests := args.BenchRequests
	if requests == 0 {
		requests = cfg.BenchRequests
	}
	concurrency := args.BenchConcurrency
	if concurrency == 0 {
		concurrency = cfg.BenchConcurrency
	}

	runner := &bench.Runner{
		Config: bench.Config{
			TotalRequests: requests,
			Concurrency:   concurrency,
			URL:           plan.URL.String(),
			Method:        plan.Method,
		},
		Client:      engine,
		Body:        plan.Body,
		Headers:     plan.Headers,
		ContentType: plan.ContentType,
	}
	result, err := runner.Run(ctx)
	if err != nil {
		return status.Error, err
	}
	fmt.Print(bench.Format(result))

	if result.Stats.SuccessRate < 0.5 {
		return status.Error, nil
	}
	return status.Success, nil
}

func runFuzz(ctx context.Context, args *cli.Args, cfg *config.Config, processed *cli.Processed, reqCfg *request.Config) (status.ExitStatus, error) {
	plan, err := buildPlan(ctx, args, processed, reqCfg)
	if err != nil {
		return status.Error, err
	}
	engine, err := client.New(clientOptions(args, cfg))
	if err != nil {
		return status.Error, err
	}
	defer engine.CloseIdleConnections()

	var categories []fuzz.Category
	for _, c := range args.FuzzCategories {
		cat, err := fuzz.ParseCategory(c)
		if err != nil {
			return status.Error, err
		}
		categories = append(categories, cat)
	}

	var extra []fuzz.Payload
	if args.FuzzDict != "" {
		loaded, err := fuzz.LoadDictionary(args.FuzzDict)
		if err != nil {
			return status.Error, err
		}
		extra = append(extra, loaded...)
	}
	extra = append(extra, fuzz.CustomPayloads(args.FuzzPayloads)...)

	fields := args.FuzzFields
	baseBody := make(map[string]interface{})
	for _, it := range processed.Items {
		switch v := it.(type) {
		case input.DataField:
			baseBody[v.DataKey] = v.Value
			if len(args.FuzzFields) == 0 {
				fields = append(fields, v.DataKey)
			}
		case input.JSONField:
			var decoded interface{}
			if err := jsonUnmarshal(v.Value, &decoded); err == nil {
				baseBody[v.JSONKey] = decoded
			}
			if len(args.FuzzFields) == 0 {
				fields = append(fields, v.JSONKey)
			}
		}
	}

	concurrency := args.FuzzConcurrency
	if concurrency == 0 {
		concurrency = cfg.FuzzConcurrency
	}
	format := fuzz.BodyFormatJSON
	if args.Form {
		format = fuzz.BodyFormatForm
	}

	runner := &fuzz.Runner{
		Client: engine,
		Options: fuzz.Options{
			Concurrency:   concurrency,
			Categories:    categories,
			MinRisk:       args.FuzzRisk,
			AnomaliesOnly: args.FuzzAnomaliesOnly,
			StopOnAnomaly: args.FuzzStopOnAnomaly,
			BodyFormat:    format,
			Extra:         extra,
		},
		Method:   plan.Method,
		URL:      plan.URL.String(),
		Headers:  plan.Headers,
		BaseBody: baseBody,
	}
	outcomes, summary, err := runner.Run(ctx, fields)
	if err != nil {
		return status.Error, err
	}
	fmt.Print(fuzz.Format(outcomes, summary, args.FuzzAnomaliesOnly))

	if summary.Anomalies > 0 {
		return status.Error, nil
	}
	return status.Success, nil
}

func runHARReplay(ctx context.Context, args *cli.Args, cfg *config.Config) (status.ExitStatus, error) {
	archive, err := har.Load(args.HARReplay)
	if err != nil {
		return status.Error, err
	}
	if args.HARFilter != "" {
		archive.Filter(args.HARFilter)
	}
	if len(args.HARIndices) > 0 {
		archive.Select(args.HARIndices)
	}
	if len(archive.Log.Entries) == 0 {
		return status.Error, status.Errorf(status.KindArgument, "no HAR entries selected")
	}

	engine, err := client.New(clientOptions(args, cfg))
	if err != nil {
		return status.Error, err
	}
	defer engine.CloseIdleConnections()

	replayer := &har.Replayer{
		Client:  engine,
		Options: har.ReplayOptions{Delay: args.HARDelay},
	}
	outcomes := replayer.Replay(ctx, archive)
	fmt.Print(har.FormatReplay(outcomes))

	for _, o := range outcomes {
		if o.Error != "" {
			return status.Error, nil
		}
	}
	return status.Success, nil
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
