package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"servicectl/internal/config"
	"servicectl/internal/logger"
	"servicectl/internal/procinfo"
	"servicectl/internal/scm"
	"servicectl/internal/svcflag"
)

var errUsage = errors.New("invalid usage")

type command struct {
	name string
	help string
	run  func(ctx context.Context, c *scm.Client, args []string) (any, error)
}

var commands = []command{
	{"names", "list service names [-type T]... [-state S]...", cmdNames},
	{"enumerate", "list services with status [-type T]... [-state S]...", cmdEnumerate},
	{"config", "show the configuration of a service", cmdConfig},
	{"status", "show the status of a service and its process", cmdStatus},
	{"create", "create a service -binpath PATH [options]", cmdCreate},
	{"change", "change selected settings of a service", cmdChange},
	{"remove", "mark a service for deletion", cmdRemove},
	{"enable", "set the start type of a service [-start auto|demand|boot|system]", cmdEnable},
	{"disable", "set the start type of a service to disabled", cmdDisable},
	{"start", "start a service [-wait]", cmdStart},
	{"stop", "stop a service [-wait]", cmdStop},
	{"restart", "stop a service and start it again", cmdRestart},
}

// runCommand runs a management command and prints its result as JSON.
func runCommand(cfg *config.Config, name string, args []string) int {
	log := logger.WithComponent("main")

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		usage()
		return 2
	}

	c := scm.New()
	c.SetWaitTimeout(cfg.StateWaitTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := cmd.run(ctx, c, args)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return 2
	case err != nil:
		log.Error().Err(err).Str("command", name).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return 1
	}

	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			return 1
		}
	}
	return 0
}

// listFlag collects a repeatable flag. It stays nil until the flag is
// given; an empty value yields an empty, non-nil list.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	if *l == nil {
		*l = listFlag{}
	}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func parseList[T any](values listFlag, parse func(string) (T, error)) ([]T, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		parsed, err := parse(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// parseNamed parses fs and returns the service name, which may come before
// or after the flags.
func parseNamed(fs *flag.FlagSet, args []string) (string, error) {
	var name string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", errUsage, err)
	}
	if name == "" {
		name = fs.Arg(0)
	}
	if name == "" {
		return "", fmt.Errorf("%w: service name required", errUsage)
	}
	return name, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func listOptions(name string, args []string) (scm.ListOptions, error) {
	var types, states listFlag
	fs := newFlagSet(name)
	fs.Var(&types, "type", "service type filter, repeatable (e.g. WIN32, DRIVER, KERNEL_DRIVER)")
	fs.Var(&states, "state", "state filter, repeatable (ACTIVE, INACTIVE, ALL)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return scm.ListOptions{}, err
		}
		return scm.ListOptions{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	var opts scm.ListOptions
	var err error
	if opts.Types, err = parseList(types, svcflag.ParseServiceType); err != nil {
		return opts, err
	}
	if opts.States, err = parseList(states, svcflag.ParseStateFilter); err != nil {
		return opts, err
	}
	return opts, nil
}

func cmdNames(_ context.Context, c *scm.Client, args []string) (any, error) {
	opts, err := listOptions("names", args)
	if err != nil {
		return nil, err
	}
	return c.Names(opts)
}

func cmdEnumerate(_ context.Context, c *scm.Client, args []string) (any, error) {
	opts, err := listOptions("enumerate", args)
	if err != nil {
		return nil, err
	}
	return c.Enumerate(opts)
}

func cmdConfig(_ context.Context, c *scm.Client, args []string) (any, error) {
	name, err := parseNamed(newFlagSet("config"), args)
	if err != nil {
		return nil, err
	}
	return c.Config(name)
}

type statusView struct {
	scm.Status
	Process *procinfo.Info `json:"process,omitempty"`
}

func cmdStatus(ctx context.Context, c *scm.Client, args []string) (any, error) {
	name, err := parseNamed(newFlagSet("status"), args)
	if err != nil {
		return nil, err
	}
	st, err := c.Status(name)
	if err != nil {
		return nil, err
	}

	view := statusView{Status: st}
	if st.ProcessID != 0 {
		info, err := procinfo.Describe(ctx, st.ProcessID)
		if err != nil {
			log := logger.WithComponent("main")
			log.Warn().Err(err).Uint32("pid", st.ProcessID).Msg("Failed to describe service process")
		} else {
			view.Process = info
		}
	}
	return view, nil
}

// descriptorFlags registers the flags shared by create and change.
type descriptorFlags struct {
	types        listFlag
	depend       listFlag
	startType    string
	errorControl string
	binPath      string
	group        string
	obj          string
	password     string
	display      string
	description  string
}

func (d *descriptorFlags) register(fs *flag.FlagSet) {
	fs.Var(&d.types, "type", "service type, repeatable (e.g. WIN32_OWN_PROCESS, INTERACTIVE_PROCESS)")
	fs.Var(&d.depend, "depend", "dependency, repeatable; prefix groups with +")
	fs.StringVar(&d.startType, "start", "", "start type (boot, system, auto, demand, disabled)")
	fs.StringVar(&d.errorControl, "error", "", "error control (ignore, normal, severe, critical)")
	fs.StringVar(&d.binPath, "binpath", "", "binary path name with arguments")
	fs.StringVar(&d.group, "group", "", "load order group")
	fs.StringVar(&d.obj, "obj", "", "account the service runs as")
	fs.StringVar(&d.password, "password", "", "password of the account")
	fs.StringVar(&d.display, "display", "", "display name")
	fs.StringVar(&d.description, "description", "", "description")
}

func (d *descriptorFlags) start() (*svcflag.StartType, error) {
	if d.startType == "" {
		return nil, nil
	}
	st, err := svcflag.ParseStartType(d.startType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return &st, nil
}

func (d *descriptorFlags) errorCtl() (*svcflag.ErrorControl, error) {
	if d.errorControl == "" {
		return nil, nil
	}
	ec, err := svcflag.ParseErrorControl(d.errorControl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return &ec, nil
}

func cmdCreate(_ context.Context, c *scm.Client, args []string) (any, error) {
	var d descriptorFlags
	fs := newFlagSet("create")
	d.register(fs)
	name, err := parseNamed(fs, args)
	if err != nil {
		return nil, err
	}

	opts := scm.CreateOptions{
		BinaryPathName:   d.binPath,
		Dependencies:     d.depend,
		LoadOrderGroup:   d.group,
		ServiceStartName: d.obj,
		DisplayName:      d.display,
		Description:      d.description,
		Password:         d.password,
	}
	if opts.ServiceType, err = parseList(d.types, svcflag.ParseServiceType); err != nil {
		return nil, err
	}
	if opts.StartType, err = d.start(); err != nil {
		return nil, err
	}
	if opts.ErrorControl, err = d.errorCtl(); err != nil {
		return nil, err
	}

	if err := c.Create(name, opts); err != nil {
		return nil, err
	}
	return c.Config(name)
}

func cmdChange(_ context.Context, c *scm.Client, args []string) (any, error) {
	var d descriptorFlags
	fs := newFlagSet("change")
	d.register(fs)
	name, err := parseNamed(fs, args)
	if err != nil {
		return nil, err
	}

	opts, err := changeOptions(fs, &d)
	if err != nil {
		return nil, err
	}
	if err := c.Change(name, opts); err != nil {
		return nil, err
	}
	return c.Config(name)
}

// changeOptions keeps only the flags that were given on the command line.
func changeOptions(fs *flag.FlagSet, d *descriptorFlags) (scm.ChangeOptions, error) {
	var opts scm.ChangeOptions
	var err error

	if opts.ServiceType, err = parseList(d.types, svcflag.ParseServiceType); err != nil {
		return opts, err
	}
	opts.Dependencies = d.depend
	if opts.StartType, err = d.start(); err != nil {
		return opts, err
	}
	if opts.ErrorControl, err = d.errorCtl(); err != nil {
		return opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "binpath":
			opts.BinaryPathName = &d.binPath
		case "group":
			opts.LoadOrderGroup = &d.group
		case "obj":
			opts.ServiceStartName = &d.obj
		case "password":
			opts.Password = &d.password
		case "display":
			opts.DisplayName = &d.display
		case "description":
			opts.Description = &d.description
		}
	})
	return opts, nil
}

func cmdRemove(_ context.Context, c *scm.Client, args []string) (any, error) {
	name, err := parseNamed(newFlagSet("remove"), args)
	if err != nil {
		return nil, err
	}
	return nil, c.Remove(name)
}

func cmdEnable(_ context.Context, c *scm.Client, args []string) (any, error) {
	fs := newFlagSet("enable")
	start := fs.String("start", "auto", "start type (boot, system, auto, demand)")
	name, err := parseNamed(fs, args)
	if err != nil {
		return nil, err
	}

	st, err := svcflag.ParseStartType(*start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if st == svcflag.Disabled {
		return nil, fmt.Errorf("%w: use disable to disable a service", errUsage)
	}
	if err := c.Enable(name, st); err != nil {
		return nil, err
	}
	return c.Config(name)
}

func cmdDisable(_ context.Context, c *scm.Client, args []string) (any, error) {
	name, err := parseNamed(newFlagSet("disable"), args)
	if err != nil {
		return nil, err
	}
	if err := c.Disable(name); err != nil {
		return nil, err
	}
	return c.Config(name)
}

func cmdStart(ctx context.Context, c *scm.Client, args []string) (any, error) {
	fs := newFlagSet("start")
	wait := fs.Bool("wait", false, "wait until the service is running")
	name, err := parseNamed(fs, args)
	if err != nil {
		return nil, err
	}
	if *wait {
		return c.StartAndWait(ctx, name)
	}
	if err := c.Start(ctx, name); err != nil {
		return nil, err
	}
	return c.Status(name)
}

func cmdStop(ctx context.Context, c *scm.Client, args []string) (any, error) {
	fs := newFlagSet("stop")
	wait := fs.Bool("wait", false, "wait until the service has stopped")
	name, err := parseNamed(fs, args)
	if err != nil {
		return nil, err
	}
	if *wait {
		return c.StopAndWait(ctx, name)
	}
	if err := c.Stop(ctx, name); err != nil {
		return nil, err
	}
	return c.Status(name)
}

func cmdRestart(ctx context.Context, c *scm.Client, args []string) (any, error) {
	name, err := parseNamed(newFlagSet("restart"), args)
	if err != nil {
		return nil, err
	}
	if _, err := c.StopAndWait(ctx, name); err != nil {
		return nil, err
	}
	return c.StartAndWait(ctx, name)
}
