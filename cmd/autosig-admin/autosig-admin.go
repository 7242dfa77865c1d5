package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"

	"code.autosig.org/golang/internal/config"
	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/internal/storage"
	"code.autosig.org/golang/internal/utils"
	"code.autosig.org/golang/pkg/autosig"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/digest"
)

const usageFmt = `
Command Usage: %s [Flags] <command> [args...]
  Administer the autosig credential store.

Commands:
---------
  migrate                          create the store schema if missing
  rebuild-db                       drop all accounts and recreate the store schema
  add-student <id> <name> [openid] enroll a student account
  stats                            print the number of accounts of each type

The add-student password is read from the AUTOSIG_PASSWORD environment variable or else from stdin.

Flags:
------
`

const passwordEnv = "AUTOSIG_PASSWORD"

type Cmd struct {
	Config  config.Config
	Yes     bool
	Command string
	Args    []string
	Stdin   io.Reader
	Stdout  io.Writer
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{Stdin: os.Stdin, Stdout: os.Stdout}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	var cfgPath string
	flags.StringVar(&cfgPath, "config", "", utils.Dedent(`
	Path of the YAML configuration file.
	Default configuration is used if not set.
	`))
	flags.BoolVar(&cmd.Yes, "yes", false, "confirm rebuild-db")
	flags.Parse(args)

	cfg, err := config.Load(cfgPath)
	if nil != err {
		log.Fatalf("Failed loading configuration, got error %v", err)
	}
	cmd.Config = cfg

	if flags.NArg() < 1 {
		flags.Usage()
		os.Exit(2)
	}
	cmd.Command = flags.Arg(0)
	cmd.Args = flags.Args()[1:]

	return &cmd
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])

	logger, err := observability.NewLogger(os.Stderr, cmd.Config.Log.Format, cmd.Config.Log.Level)
	if nil != err {
		log.Fatalf("Invalid log configuration, got error %v", err)
	}
	ctx := observability.SetObservability(context.Background(), &observability.Observability{Logger: logger})

	err = cmd.Run(ctx)
	if nil != err {
		log.Fatalf("Failed %s, got error %v", cmd.Command, err)
	}
}

// Run executes the Cmd command.
func (self *Cmd) Run(ctx context.Context) error {
	switch self.Command {
	case "migrate", "stats":
		if 0 != len(self.Args) {
			return fmt.Errorf("%s expects no argument", self.Command)
		}
	case "rebuild-db":
		if !self.Yes {
			return errors.New("rebuild-db drops all accounts, confirm with -yes")
		}
	case "add-student":
		if len(self.Args) < 2 || len(self.Args) > 3 {
			return errors.New("add-student expects <id> <name> [openid]")
		}
	default:
		return fmt.Errorf("unknown command %q", self.Command)
	}

	store, err := storage.Open(ctx, self.Config.Store, "rebuild-db" == self.Command)
	if nil != err {
		return err
	}
	defer store.Close()

	switch self.Command {
	case "migrate":
		fmt.Fprintf(self.Stdout, "%s store schema is up to date\n", store.Driver())
	case "rebuild-db":
		fmt.Fprintf(self.Stdout, "%s store rebuilt\n", store.Driver())
	case "stats":
		stats, err := store.Stats(ctx)
		if nil != err {
			return err
		}
		for _, kind := range credentials.Kinds {
			fmt.Fprintf(self.Stdout, "%s: %d\n", kind, stats[kind])
		}
	case "add-student":
		return self.addStudent(ctx, store)
	}

	return nil
}

func (self *Cmd) addStudent(ctx context.Context, store credentials.CredStore) error {
	dg, err := digest.New(self.Config.Digest.Algorithm)
	if nil != err {
		return err
	}
	password, err := self.password()
	if nil != err {
		return err
	}
	req := autosig.StudentRequest{
		Id:             self.Args[0],
		DisplayName:    self.Args[1],
		ExpectedDigest: dg.Digest(password),
	}
	if 3 == len(self.Args) {
		req.WxOpenId = self.Args[2]
	}

	srv, err := autosig.NewService(store, autosig.Options{KeyBits: self.Config.Keys.Bits, Timeout: self.Config.Timeouts.Store})
	if nil != err {
		return err
	}
	err = srv.Registrar.EnrollStudent(ctx, req)
	if nil != err {
		return err
	}
	fmt.Fprintf(self.Stdout, "enrolled student %s\n", req.Id)

	return nil
}

func (self *Cmd) password() ([]byte, error) {
	if v, found := os.LookupEnv(passwordEnv); found {
		return []byte(v), nil
	}
	line, err := bufio.NewReader(self.Stdin).ReadString('\n')
	if nil != err && !errors.Is(err, io.EOF) {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if "" == line {
		return nil, fmt.Errorf("empty password, set %s or write it on stdin", passwordEnv)
	}
	return []byte(line), nil
}
