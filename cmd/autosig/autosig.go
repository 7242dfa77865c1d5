package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"code.autosig.org/golang/internal/algos"
	"code.autosig.org/golang/internal/transport"
	"code.autosig.org/golang/internal/utils"
	"code.autosig.org/golang/pkg/autosig"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/digest"
)

const usageFmt = `
Command Usage: %s [Flags] <command> [args...]
  Call an autosig API server.

Commands:
---------
  register <id> <name> <bssid>   register a teacher account
  pubkey <id>                    print an account public key
  bssid <id> <bssid>             change a teacher BSSID binding
  ssid <id> <ssid>               change a teacher SSID binding
  token <id>                     print an authentication token
  login <jscode>                 open a WeChat session
  bind-status <session_id>       print the bind status of a WeChat session

Passwords are read from the AUTOSIG_PASSWORD environment variable or else from stdin.

Flags:
------
`

// passwordEnv names the environment variable holding the account password.
const passwordEnv = "AUTOSIG_PASSWORD"

type Cmd struct {
	Client  autosig.Client
	Kind    credentials.AccountKind
	KindSet bool
	Timeout time.Duration
	Command string
	Args    []string
	Stdin   io.Reader
	Stdout  io.Writer
}

var arity = map[string]int{
	"register":    3,
	"pubkey":      1,
	"bssid":       2,
	"ssid":        2,
	"token":       1,
	"login":       1,
	"bind-status": 1,
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{Stdin: os.Stdin, Stdout: os.Stdout}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	flags.StringVar(&cmd.Client.BaseURL, "server", "http://localhost:8080", "autosig server URL")
	flags.DurationVar(&cmd.Timeout, "timeout", 10*time.Second, "request timeout")
	var algorithm string
	const digestDoc = `
	Password digest algorithm, it must match the server configuration.
	Supported algorithms are %v.
	`
	flags.StringVar(&algorithm, "digest", digest.DefaultAlgorithm, utils.Dedent(fmt.Sprintf(digestDoc, algos.ListHashes())))
	flags.Func("type", utils.Dedent(`
	Account type, teacher or student.
	Default to teacher.
	`), func(v string) error {
		kind, err := credentials.ParseAccountKind(v)
		if nil == err {
			cmd.Kind = kind
			cmd.KindSet = true
		}
		return err
	})
	var useCBOR bool
	flags.BoolVar(&useCBOR, "cbor", false, "request CBOR encoded responses")
	flags.Parse(args)

	dg, err := digest.New(algorithm)
	if nil != err {
		log.Fatalf("Invalid -digest, got error %v", err)
	}
	cmd.Client.Digester = dg
	if useCBOR {
		cmd.Client.Serializer = transport.CBORSerializer{}
	}
	cmd.Client.HTTP = &http.Client{Timeout: cmd.Timeout}

	if flags.NArg() < 1 {
		flags.Usage()
		os.Exit(2)
	}
	cmd.Command = flags.Arg(0)
	cmd.Args = flags.Args()[1:]
	n, known := arity[cmd.Command]
	if !known {
		log.Fatalf("Unknown command %q", cmd.Command)
	}
	if n != len(cmd.Args) {
		log.Fatalf("Command %s expects %d arguments, got %d", cmd.Command, n, len(cmd.Args))
	}

	return &cmd
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])
	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()
	err := cmd.Run(ctx)
	if nil != err {
		log.Fatalf("Failed %s, got error %v", cmd.Command, err)
	}
}

// Run executes the Cmd command.
func (self *Cmd) Run(ctx context.Context) error {
	client := self.Client
	args := self.Args

	switch self.Command {
	case "register":
		password, err := self.password()
		if nil != err {
			return err
		}
		err = client.Register(ctx, args[0], args[1], args[2], password)
		if nil != err {
			return err
		}
		fmt.Fprintf(self.Stdout, "registered teacher %s\n", args[0])

	case "pubkey":
		pub, err := client.QueryPublicKey(ctx, self.Kind, args[0])
		if nil != err {
			return err
		}
		fmt.Fprint(self.Stdout, string(pub))

	case "bssid", "ssid":
		password, err := self.password()
		if nil != err {
			return err
		}
		if "bssid" == self.Command {
			err = client.UpdateBSSID(ctx, args[0], args[1], password)
		} else {
			err = client.UpdateSSID(ctx, args[0], args[1], password)
		}
		if nil != err {
			return err
		}
		fmt.Fprintf(self.Stdout, "updated %s of teacher %s\n", self.Command, args[0])

	case "token":
		password, err := self.password()
		if nil != err {
			return err
		}
		token, err := client.Token(ctx, self.Kind, args[0], password)
		if nil != err {
			return err
		}
		fmt.Fprintln(self.Stdout, token)

	case "login":
		login, err := client.WxLogin(ctx, args[0])
		if nil != err {
			return err
		}
		fmt.Fprintf(self.Stdout, "session_id: %s\nexpires_in: %ds\n", login.SessionId, login.ExpiresIn)

	case "bind-status":
		kind := credentials.Student
		if self.KindSet {
			kind = self.Kind
		}
		bound, err := client.QueryBindStatus(ctx, kind, args[0])
		if nil != err {
			return err
		}
		fmt.Fprintf(self.Stdout, "bound: %t\n", bound)
	}

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
