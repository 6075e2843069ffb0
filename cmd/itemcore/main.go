// Command itemcore runs single item mutations and reads against the configured
// store. Configuration comes from ITEMCORE_* environment variables; the acting
// principal comes from flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"itemcore/internal/core"
	"itemcore/pkg/domain"
)

var exitFunc = os.Exit

const usage = `usage: itemcore <command> [flags]

commands:
  create   -f item.json [-id ID]
  update   -id ID -version N -f changes.json [-strategy fail|lastWriteWins|merge] [-versioning]
  delete   -id ID [-block-on-cleanup]
  get      -id ID [-related]
  history  -id ID
  list     [-filter EXPR] [-page-size N] [-page-token TOKEN]

common flags: -actor ID -caps read,write,admin,approver -audit -notify -backup -metrics
`

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	exitFunc(code)
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	actor   string
	caps    string
	audit   bool
	notify  bool
	backup  bool
	metrics bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.actor, "actor", os.Getenv("USER"), "acting principal id")
	fs.StringVar(&c.caps, "caps", "read,write", "comma separated capabilities")
	fs.BoolVar(&c.audit, "audit", true, "record an audit entry")
	fs.BoolVar(&c.notify, "notify", false, "dispatch notifications")
	fs.BoolVar(&c.backup, "backup", false, "back up the committed item")
	fs.BoolVar(&c.metrics, "metrics", false, "print collected metrics to stderr on exit")
}

func (c *commonFlags) principal() core.Actor {
	var caps []domain.Capability
	for _, raw := range strings.Split(c.caps, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			caps = append(caps, domain.Capability(raw))
		}
	}
	return core.Actor{ID: c.actor, Capabilities: domain.NewCapabilitySet(caps...)}
}

func (c *commonFlags) options() core.Options {
	return core.Options{
		PreProcessors:   []core.Step{core.TrimStrings(), core.NormalizeTags()},
		ValidationRules: core.DefaultItemRules(),
		Notification:    domain.NotificationSettings{Enabled: c.notify},
		Audit:           domain.AuditSettings{Enabled: c.audit},
		Backup:          core.BackupSettings{Enabled: c.backup},
	}
}

type command struct {
	flags *flag.FlagSet
	run   func(ctx context.Context, a *app) (any, error)
}

func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	var common commonFlags
	cmd, err := newCommand(args[0], &common, stdin)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n%s", err, usage)
		return 2
	}
	cmd.flags.SetOutput(stderr)
	if err := cmd.flags.Parse(args[1:]); err != nil {
		return 2
	}

	a, err := newApp(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "itemcore: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("shutdown failed", "error", err)
		}
	}()

	out, err := cmd.run(ctx, a)
	if common.metrics {
		if merr := a.writeMetrics(stderr); merr != nil {
			a.logger.Error("write metrics", "error", merr)
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "itemcore %s: %s: %v\n", args[0], domain.KindOf(err), err)
		return exitCode(err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		_, _ = fmt.Fprintf(stderr, "itemcore: encode output: %v\n", err)
		return 1
	}
	return 0
}

func newCommand(name string, common *commonFlags, stdin io.Reader) (*command, error) {
	fs := flag.NewFlagSet("itemcore "+name, flag.ContinueOnError)
	common.register(fs)
	cmd := &command{flags: fs}

	switch name {
	case "create":
		file := fs.String("f", "", "item JSON file, - for stdin")
		id := fs.String("id", "", "item id, generated when empty")
		cmd.run = func(ctx context.Context, a *app) (any, error) {
			fields, err := readRecord(*file, stdin)
			if err != nil {
				return nil, err
			}
			req := core.ItemCreateRequest{ID: *id, Fields: fields}
			if req.ID == "" {
				req.ID, _ = fields[domain.FieldID].(string)
			}
			opts := common.options()
			opts.SideEffectTimeout = a.cfg.SideEffectTimeout
			return a.service.CreateItem(ctx, req, common.principal(), opts)
		}
	case "update":
		file := fs.String("f", "", "changes JSON file, - for stdin")
		id := fs.String("id", "", "item id")
		version := fs.Int64("version", 0, "expected stored version")
		strategy := fs.String("strategy", string(core.StrategyFail), "conflict strategy: fail, lastWriteWins or merge")
		versioning := fs.Bool("versioning", false, "snapshot the prior version")
		cmd.run = func(ctx context.Context, a *app) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			changes, err := readRecord(*file, stdin)
			if err != nil {
				return nil, err
			}
			opts := common.options()
			opts.ConflictStrategy = core.ConflictStrategy(*strategy)
			opts.Versioning.Enabled = *versioning
			opts.SideEffectTimeout = a.cfg.SideEffectTimeout
			return a.service.UpdateItem(ctx, *id, changes, *version, opts, common.principal())
		}
	case "delete":
		id := fs.String("id", "", "item id")
		block := fs.Bool("block-on-cleanup", false, "abort when dependent cleanup fails")
		cmd.run = func(ctx context.Context, a *app) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			return a.service.DeleteItem(ctx, *id, common.principal(), core.DeleteOptions{
				Notification:          domain.NotificationSettings{Enabled: common.notify},
				Audit:                 domain.AuditSettings{Enabled: common.audit},
				BlockOnCleanupFailure: *block,
				SideEffectTimeout:     a.cfg.SideEffectTimeout,
			})
		}
	case "get":
		id := fs.String("id", "", "item id")
		related := fs.Bool("related", false, "include dependencies, links and history")
		cmd.run = func(ctx context.Context, a *app) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			if *related {
				return a.service.GetItemWithRelated(ctx, *id, common.principal())
			}
			return a.service.GetItem(ctx, *id, common.principal())
		}
	case "history":
		id := fs.String("id", "", "item id")
		cmd.run = func(ctx context.Context, a *app) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			return a.service.ItemHistory(ctx, *id, common.principal())
		}
	case "list":
		filter := fs.String("filter", "", "AIP-160 filter expression")
		pageSize := fs.Int("page-size", 0, "maximum items per page")
		pageToken := fs.String("page-token", "", "token from a previous page")
		cmd.run = func(ctx context.Context, a *app) (any, error) {
			return a.service.ListItems(ctx, core.ListRequest{Filter: *filter, PageSize: *pageSize, PageToken: *pageToken}, common.principal())
		}
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return cmd, nil
}

func readRecord(path string, stdin io.Reader) (core.Record, error) {
	var r io.Reader
	switch path {
	case "":
		return nil, errors.New("-f is required")
	case "-":
		r = stdin
	default:
		f, err := os.Open(path) // #nosec G304 -- operator supplied input file
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var rec core.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidationFailed, domain.KindNotFound, domain.KindVersionMismatch,
		domain.KindAlreadyExists, domain.KindPermissionDenied, domain.KindProcessor:
		return 3
	default:
		return 1
	}
}
