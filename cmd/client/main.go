// Interactive chat front end: a thin line-oriented wrapper around the
// wire protocol. Plain input broadcasts, "@user text" sends privately,
// "/cmd" runs a local command and "?cmd" shows its help.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"batepapo/internal/client"
	"batepapo/internal/protocol"
)

var (
	cmdPattern = regexp.MustCompile(`^[/?]\w+(\s.*)?$`)
	pvtPattern = regexp.MustCompile(`^@\w+\s+.+`)
)

type command struct {
	help string
	run  func(c *client.Client, args []string)
}

var commands = map[string]command{
	"ls": {
		help: "Lista os usuários online.\nSintaxe: /ls [padrao]",
		run:  listUsers,
	},
	"q": {
		help: "Termina a sessão atual.",
		run: func(c *client.Client, _ []string) {
			c.Close()
			os.Exit(0)
		},
	},
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "server host:port")
	flag.Parse()

	color.BgGreen.Println("Bem vindo ao chat!")
	stdin := bufio.NewScanner(os.Stdin)

	fmt.Print("Como deseja ser conhecido? ")
	if !stdin.Scan() {
		return
	}
	name := strings.TrimSpace(stdin.Text())
	if name == "" {
		color.Red.Println("Nenhum nome informado.")
		os.Exit(1)
	}

	c, err := client.Dial(*addr, name)
	if err != nil {
		color.Red.Printf("Não foi possível conectar: %v\n", err)
		os.Exit(1)
	}

	go func() {
		for f := range c.Frames() {
			render(f)
		}
		color.Red.Println("Conexão encerrada.")
		os.Exit(0)
	}()

	for stdin.Scan() {
		dispatch(c, stdin.Text())
	}
	c.Close()
}

func dispatch(c *client.Client, line string) {
	switch {
	case strings.TrimSpace(line) == "":
		color.Red.Println("Nada foi enviado.")

	case cmdPattern.MatchString(line):
		parts := strings.Fields(line)
		cmd, ok := commands[parts[0][1:]]
		switch {
		case ok && strings.HasPrefix(line, "/"):
			cmd.run(c, parts[1:])
		case ok:
			color.Magenta.Println(cmd.help)
		default:
			color.Red.Println("Comando não encontrado.")
		}

	case pvtPattern.MatchString(line):
		space := strings.Index(line, " ")
		target := line[1:space]
		text := strings.TrimSpace(line[space+1:])
		if err := c.Send(target, text); err != nil {
			color.Red.Println(err)
			return
		}
		color.New(color.FgGreen, color.BgWhite).Printf("Você → %s: %s", target, text)
		fmt.Println()

	default:
		if err := c.Send(protocol.RecipientAll, line); err != nil {
			color.Red.Println(err)
			return
		}
		color.New(color.FgGreen, color.BgWhite).Printf("Você: %s", line)
		fmt.Println()
	}
}

func listUsers(c *client.Client, args []string) {
	users := c.Users()
	if len(args) > 0 {
		pattern := strings.ToLower(args[0])
		users = lo.Filter(users, func(u string, _ int) bool {
			return strings.Contains(strings.ToLower(u), pattern)
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Usuários online"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, u := range users {
		table.Append([]string{u})
	}
	table.Render()
}

func render(f *protocol.Frame) {
	switch f.Type {
	case protocol.TypeResult:
		res := f.Payload.(protocol.Result)
		if res.Code == protocol.ResultOK {
			color.Blue.Println(res.Message)
		} else {
			color.Red.Println(res.Message)
		}

	case protocol.TypeListing:
		lst := f.Payload.(protocol.Listing)
		switch {
		case lst.Joined != nil:
			for _, u := range lst.Joined {
				color.Cyan.Printf("%s entrou no chat.\n", u)
			}
		case lst.Left != nil:
			for _, u := range lst.Left {
				color.Cyan.Printf("%s saiu do chat.\n", u)
			}
		}
		// the roster itself is tracked by the client and shown via /ls

	case protocol.TypeMessage:
		msg := f.Payload.(protocol.Chat)
		text := fmt.Sprintf("%s: %s", msg.Sender, msg.Text)
		if msg.Recipient != protocol.RecipientAll {
			color.Yellow.Println("(PVT) " + text)
		} else {
			color.Green.Println(text)
		}
	}
}
