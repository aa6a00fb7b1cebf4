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
	"time"

	"github.com/and161185/pairchat/internal/api"
)

var errUsage = errors.New("usage")

// public commands run without a saved token.
var public = map[string]bool{"register": true, "login": true}

// peerCmds map a one-argument command to its RPC.
var peerCmds = map[string]string{
	"connect":    api.MethodRequestConnection,
	"accept":     api.MethodAcceptConnection,
	"unsend":     api.MethodUnsendRequest,
	"decline":    api.MethodDeleteRequest,
	"disconnect": api.MethodRemoveConnection,
	"block":      api.MethodBlock,
	"unblock":    api.MethodUnblock,
	"drop":       api.MethodDeleteConversation,
	"clear":      api.MethodClearMessages,
}

var listCmds = map[string]string{
	"directory":   api.MethodDirectory,
	"connections": api.MethodConnections,
	"requests":    api.MethodRequests,
	"blocked":     api.MethodBlocked,
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// run executes one subcommand against cl and writes its result to out.
func run(ctx context.Context, cl *api.Client, out io.Writer, cmd string, args []string) error {
	if method, ok := peerCmds[cmd]; ok {
		if len(args) != 1 {
			return errUsage
		}
		if err := cl.Peer(ctx, method, args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
	if method, ok := listCmds[cmd]; ok {
		users, err := cl.List(ctx, method)
		if err != nil {
			return err
		}
		return printJSON(out, users)
	}

	switch cmd {
	case "register":
		return cmdRegister(ctx, cl, out, args)
	case "login":
		return cmdLogin(ctx, cl, out, args)
	case "whoami":
		me, err := cl.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, me)
	case "users":
		users, err := cl.SearchUsers(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printJSON(out, users)
	case "all-users":
		users, err := cl.ListUsers(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, users)
	case "set-avatar":
		if len(args) != 1 {
			return errUsage
		}
		data, err := readAttachment(args[0])
		if err != nil {
			return err
		}
		pic, err := cl.SetProfilePicture(ctx, data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, pic.MimeType)
		return err
	case "avatar":
		return cmdAvatar(ctx, cl, out, args)
	case "rm-avatar":
		if err := cl.DeleteProfilePicture(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "ok")
		return err
	case "start":
		if len(args) != 1 {
			return errUsage
		}
		c, err := cl.StartConversation(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, c)
	case "load":
		if len(args) != 1 {
			return errUsage
		}
		tr, err := cl.LoadConversation(ctx, args[0])
		if err != nil {
			return err
		}
		for _, m := range tr.Messages {
			printLine(out, m)
		}
		return nil
	case "send":
		return cmdSend(ctx, cl, out, args)
	case "edit":
		return cmdEdit(ctx, cl, out, args)
	case "rm":
		if len(args) != 2 {
			return errUsage
		}
		if err := cl.DeleteMessage(ctx, args[0], args[1]); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "ok")
		return err
	case "search":
		if len(args) < 2 {
			return errUsage
		}
		hits, err := cl.SearchMessages(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		for _, m := range hits {
			printLine(out, m)
		}
		return nil
	case "recent":
		if len(args) != 1 {
			return errUsage
		}
		m, err := cl.RecentMessage(ctx, args[0])
		if err != nil {
			return err
		}
		printLine(out, *m)
		return nil
	case "seen":
		if len(args) != 1 {
			return errUsage
		}
		n, err := cl.MarkSeen(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "marked %d\n", n)
		return err
	case "expire":
		return cmdExpire(ctx, cl, out, args)
	case "render":
		return cmdRender(ctx, cl, out, args)
	case "watch":
		return cmdWatch(ctx, cl, out, args)
	}
	return errUsage
}

// printLine renders one message as "time sender: text [attachment]".
func printLine(out io.Writer, m api.Message) {
	who := m.SenderName
	if who == "" {
		who = m.SenderID
	}
	line := fmt.Sprintf("%s %s %s: %s", m.CreatedAt.Local().Format(time.DateTime), m.ID, who, m.Content)
	if a := m.Attachment; a != nil {
		line += fmt.Sprintf(" [%s %s, %dB]", a.Kind, a.MimeType, len(a.Data))
	}
	if m.ExpiresAt != nil {
		line += " (expires " + m.ExpiresAt.Local().Format(time.DateTime) + ")"
	}
	_, _ = fmt.Fprintln(out, line)
}

func credentialsFlags(name string, args []string) (string, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if *u == "" || *p == "" {
		return "", "", errors.New("need -u and -p")
	}
	return *u, *p, nil
}

func cmdRegister(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	u, p, err := credentialsFlags("register", args)
	if err != nil {
		return err
	}
	id, err := cl.Register(ctx, u, p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, id)
	return err
}

func cmdLogin(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	u, p, err := credentialsFlags("login", args)
	if err != nil {
		return err
	}
	resp, err := cl.Login(ctx, u, p)
	if err != nil {
		return err
	}
	if err := saveToken(tokenFile{AccessToken: resp.AccessToken, UserID: resp.UserID, ExpiresAt: resp.ExpiresAt}); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "ok")
	return err
}

func readAttachment(path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func cmdSend(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	private := fs.Bool("private", false, "ephemeral message")
	ttl := fs.Float64("ttl", 0, "lifetime in hours for -private (0 = server default)")
	file := fs.String("file", "", "attachment file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errUsage
	}
	data, err := readAttachment(*file)
	if err != nil {
		return err
	}
	req := &api.SendRequest{
		Peer:       fs.Arg(0),
		Content:    strings.Join(fs.Args()[1:], " "),
		Attachment: data,
		Private:    *private,
	}
	if *ttl != 0 {
		req.TTLHours = ttl
	}
	m, err := cl.SendMessage(ctx, req)
	if err != nil {
		return err
	}
	printLine(out, *m)
	return nil
}

func cmdEdit(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	file := fs.String("file", "", "replacement attachment ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errUsage
	}
	data, err := readAttachment(*file)
	if err != nil {
		return err
	}
	req := &api.EditRequest{Peer: fs.Arg(0), MessageID: fs.Arg(1), Attachment: data}
	if fs.NArg() > 2 {
		text := strings.Join(fs.Args()[2:], " ")
		req.Content = &text
	}
	m, err := cl.EditMessage(ctx, req)
	if err != nil {
		return err
	}
	printLine(out, *m)
	return nil
}

func cmdExpire(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("expire", flag.ContinueOnError)
	in := fs.Duration("in", 0, "delete the conversation after this long")
	unset := fs.Bool("clear", false, "cancel a scheduled deletion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || (*in <= 0) == !*unset {
		return errUsage
	}
	var at *time.Time
	if !*unset {
		t := time.Now().Add(*in).UTC()
		at = &t
	}
	if err := cl.SetConversationExpiry(ctx, fs.Arg(0), at); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, "ok")
	return err
}

func cmdRender(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dst := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	html, err := cl.RenderTranscript(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *dst == "" {
		_, err = out.Write(html)
		return err
	}
	return os.WriteFile(*dst, html, 0o600)
}

func cmdAvatar(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("avatar", flag.ContinueOnError)
	dst := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	pic, err := cl.ProfilePicture(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *dst == "" {
		_, err = out.Write(pic.Data)
		return err
	}
	return os.WriteFile(*dst, pic.Data, 0o600)
}

// cmdWatch prints delivered messages until ctx ends or the server closes the room.
func cmdWatch(ctx context.Context, cl *api.Client, out io.Writer, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ev, err := cl.Join(ctx, args[0])
	if err != nil {
		return err
	}
	for {
		m, err := ev.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		printLine(out, *m)
	}
}
