package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/port-messenger/portd/internal/rpc"
	"github.com/port-messenger/portd/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	client := rpc.NewClient(session.SocketPath(sessionName))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, client, *jsonFlag)
	case "chats":
		cmdChats(ctx, client, *jsonFlag)
	case "messages":
		requireArgs(args, 2, "portctl messages <chat-id>")
		cmdMessages(ctx, client, args[1], *jsonFlag)
	case "send":
		requireArgs(args, 3, "portctl send <chat-id> <text>")
		cmdSend(ctx, client, args[1], args[2])
	case "read":
		requireArgs(args, 2, "portctl read <chat-id>")
		call(ctx, client, "connections.markRead", map[string]string{"chatId": args[1]}, nil)
		fmt.Println("ok")
	case "perms":
		cmdPerms(ctx, client, args[1:], *jsonFlag)
	case "port":
		cmdPort(ctx, client, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: portctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                           Show daemon status")
	fmt.Fprintln(os.Stderr, "  chats                            List conversations")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>               List messages in a chat")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text>            Send a text message")
	fmt.Fprintln(os.Stderr, "  read <chat-id>                   Mark a chat read")
	fmt.Fprintln(os.Stderr, "  perms get <chat-id>              Show chat permissions")
	fmt.Fprintln(os.Stderr, "  perms set <chat-id> <field> <on|off>")
	fmt.Fprintln(os.Stderr, "  perms disappearing <chat-id> <seconds>")
	fmt.Fprintln(os.Stderr, "  port create [label]              Create a shareable port")
	fmt.Fprintln(os.Stderr, "  port list                        List ports")
	fmt.Fprintln(os.Stderr, "  port pause <port-id>             Pause a port")
	fmt.Fprintln(os.Stderr, "  port resume <port-id>            Resume a port")
	fmt.Fprintln(os.Stderr, "  port qr <port-id> <out.png>      Write a port QR code PNG")
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "usage: "+usage)
		os.Exit(1)
	}
}

func call(ctx context.Context, client *rpc.Client, method string, params, result any) {
	if err := client.Call(ctx, method, params, result); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdStatus(ctx context.Context, client *rpc.Client, jsonOut bool) {
	var st map[string]string
	call(ctx, client, "status", nil, &st)
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Session: %s\n", st["session"])
	fmt.Printf("State:   %s\n", st["state"])
	fmt.Printf("Version: %s\n", st["version"])
}

func cmdChats(ctx context.Context, client *rpc.Client, jsonOut bool) {
	var conns []rpc.ConnectionInfo
	call(ctx, client, "connections.list", nil, &conns)
	if jsonOut {
		outputJSON(conns)
		return
	}
	for _, c := range conns {
		marker := " "
		if c.UnreadCount > 0 {
			marker = strconv.Itoa(c.UnreadCount)
		}
		fmt.Printf("%-3s %-24s %-8s %s\n", marker, c.Name, c.Kind, c.Text)
	}
}

func cmdMessages(ctx context.Context, client *rpc.Client, chatID string, jsonOut bool) {
	var msgs []rpc.MessageInfo
	call(ctx, client, "messages.list", map[string]any{"chatId": chatID, "limit": 50}, &msgs)
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		ts := time.UnixMilli(m.Timestamp).Format("15:04")
		fmt.Printf("%s [%s] %s %s\n", ts, m.Status, m.ContentType, m.Data)
	}
}

func cmdSend(ctx context.Context, client *rpc.Client, chatID, text string) {
	var result map[string]string
	call(ctx, client, "send.text", map[string]string{"chatId": chatID, "text": text}, &result)
	fmt.Printf("queued %s\n", result["clientMsgId"])
}

func cmdPerms(ctx context.Context, client *rpc.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: portctl perms <get|set|disappearing> ...")
		os.Exit(1)
	}
	switch args[0] {
	case "get":
		requireArgs(args, 2, "portctl perms get <chat-id>")
		var perms rpc.PermissionsInfo
		call(ctx, client, "permissions.get", map[string]string{"chatId": args[1]}, &perms)
		if jsonOut {
			outputJSON(perms)
			return
		}
		fmt.Printf("notifications:    %v\n", perms.Notifications)
		fmt.Printf("calling:          %v\n", perms.Calling)
		fmt.Printf("contact sharing:  %v\n", perms.ContactSharing)
		fmt.Printf("display picture:  %v\n", perms.DisplayPicture)
		fmt.Printf("read receipts:    %v\n", perms.ReadReceipts)
		fmt.Printf("auto download:    %v\n", perms.AutoDownload)
		fmt.Printf("disappearing:     %ds\n", perms.DisappearingMessages)
	case "set":
		requireArgs(args, 4, "portctl perms set <chat-id> <field> <on|off>")
		enabled := args[3] == "on" || args[3] == "true"
		call(ctx, client, "permissions.set",
			map[string]any{"chatId": args[1], "field": args[2], "enabled": enabled}, nil)
		fmt.Println("ok")
	case "disappearing":
		requireArgs(args, 3, "portctl perms disappearing <chat-id> <seconds>")
		secs, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: bad seconds value %q\n", args[2])
			os.Exit(1)
		}
		call(ctx, client, "permissions.set",
			map[string]any{"chatId": args[1], "disappearingSeconds": secs}, nil)
		fmt.Println("ok")
	default:
		fmt.Fprintf(os.Stderr, "unknown perms command: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdPort(ctx context.Context, client *rpc.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: portctl port <create|list|pause|resume|qr> ...")
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		label := ""
		if len(args) > 1 {
			label = args[1]
		}
		var created rpc.PortInfo
		call(ctx, client, "port.create", map[string]string{"label": label}, &created)
		if jsonOut {
			outputJSON(created)
			return
		}
		fmt.Printf("port:  %s\n", created.PortID)
		fmt.Printf("share: %s\n", created.URI)
	case "list":
		var ports []rpc.PortInfo
		call(ctx, client, "port.list", nil, &ports)
		if jsonOut {
			outputJSON(ports)
			return
		}
		for _, p := range ports {
			fmt.Printf("%-36s %-8s %s\n", p.PortID, p.State, p.Label)
		}
	case "pause", "resume":
		requireArgs(args, 2, "portctl port "+args[0]+" <port-id>")
		call(ctx, client, "port."+args[0], map[string]string{"portId": args[1]}, nil)
		fmt.Println("ok")
	case "qr":
		requireArgs(args, 3, "portctl port qr <port-id> <out.png>")
		var result map[string]string
		call(ctx, client, "port.qr", map[string]any{"portId": args[1], "size": 512}, &result)
		png, err := base64.StdEncoding.DecodeString(result["png"])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(args[2], png, 0600); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown port command: %s\n", args[0])
		os.Exit(1)
	}
}
