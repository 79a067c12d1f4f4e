package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/port-messenger/portd/internal/rpc"
	"github.com/rivo/tview"
)

const refreshInterval = 2 * time.Second

// App is the TUI shell: chat list on the left, messages and composer
// on the right, status bar at the bottom.
type App struct {
	app       *tview.Application
	client    *Client
	session   string
	chatList  *tview.List
	msgView   *tview.TextView
	composer  *tview.InputField
	statusBar *tview.TextView

	chats      []rpc.ConnectionInfo
	activeChat string
	stop       chan struct{}
}

// NewApp builds the TUI against a connected client.
func NewApp(client *Client, sessionName string) *App {
	a := &App{
		app:     tview.NewApplication(),
		client:  client,
		session: sessionName,
		stop:    make(chan struct{}),
	}

	a.chatList = tview.NewList().ShowSecondaryText(true)
	a.chatList.SetBorder(true).SetTitle(" Chats ")
	a.chatList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if index >= 0 && index < len(a.chats) {
			a.openChat(a.chats[index].ChatID)
		}
	})

	a.msgView = tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	a.msgView.SetBorder(true).SetTitle(" Messages ")

	a.composer = tview.NewInputField().SetLabel("> ")
	a.composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.composer.GetText()
		if text == "" || a.activeChat == "" {
			return
		}
		a.composer.SetText("")
		go func() {
			if _, err := a.client.SendText(a.activeChat, text); err != nil {
				a.flash(fmt.Sprintf("send failed: %v", err))
				return
			}
			a.reloadMessages()
		}()
	})

	a.statusBar = tview.NewTextView().SetDynamicColors(true)
	a.statusBar.SetText(fmt.Sprintf("[yellow]%s[-] connecting... | q:quit tab:focus enter:open", sessionName))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	body := tview.NewFlex().
		AddItem(a.chatList, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.composer.HasFocus() && event.Key() == tcell.KeyRune {
			return event
		}
		switch {
		case event.Rune() == 'q':
			a.app.Stop()
			return nil
		case event.Key() == tcell.KeyTab:
			a.cycleFocus()
			return nil
		}
		return event
	})

	a.app.SetRoot(root, true)
	return a
}

// Run starts the refresh loop and blocks in the tview event loop.
func (a *App) Run() error {
	go a.refreshLoop()
	defer close(a.stop)
	return a.app.Run()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	a.refresh()
	for {
		select {
		case <-ticker.C:
			a.refresh()
		case <-a.stop:
			return
		}
	}
}

func (a *App) refresh() {
	st, err := a.client.Status()
	if err != nil {
		a.flash("daemon unreachable")
		return
	}
	chats, err := a.client.Connections()
	if err != nil {
		a.flash(fmt.Sprintf("list failed: %v", err))
		return
	}

	a.app.QueueUpdateDraw(func() {
		a.chats = chats
		current := a.chatList.GetCurrentItem()
		a.chatList.Clear()
		for _, c := range chats {
			label := c.Name
			if c.UnreadCount > 0 {
				label = fmt.Sprintf("%s (%d)", c.Name, c.UnreadCount)
			}
			if c.Disconnected {
				label += " [red]✗[-]"
			}
			a.chatList.AddItem(label, c.Text, 0, nil)
		}
		if current >= 0 && current < len(chats) {
			a.chatList.SetCurrentItem(current)
		}
		a.statusBar.SetText(fmt.Sprintf("[yellow]%s[-] %s | q:quit tab:focus enter:open",
			a.session, st["state"]))
	})

	if a.activeChat != "" {
		a.reloadMessages()
	}
}

func (a *App) openChat(chatID string) {
	a.activeChat = chatID
	go func() {
		_ = a.client.MarkRead(chatID)
		a.reloadMessages()
	}()
	a.app.SetFocus(a.composer)
}

func (a *App) reloadMessages() {
	msgs, err := a.client.Messages(a.activeChat, 50)
	if err != nil {
		a.flash(fmt.Sprintf("load failed: %v", err))
		return
	}

	a.app.QueueUpdateDraw(func() {
		a.msgView.Clear()
		// Newest first from the API; render oldest first.
		for i := len(msgs) - 1; i >= 0; i-- {
			m := msgs[i]
			who := "them"
			if m.SenderID != "" {
				who = m.SenderID
			} else if m.Status == "pending" || m.Status == "sent" {
				who = "me"
			}
			fmt.Fprintf(a.msgView, "[green]%s[-] %s\n", who, renderBody(m))
		}
		a.msgView.ScrollToEnd()
	})
}

func renderBody(m rpc.MessageInfo) string {
	switch m.ContentType {
	case "text":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(m.Data), &p); err == nil {
			return p.Text
		}
	case "media":
		return "[attachment]"
	case "call_signal":
		return "[call]"
	case "disappearing_change":
		return "[disappearing timer changed]"
	case "contact_share":
		return "[shared contact]"
	}
	return "[" + m.ContentType + "]"
}

func (a *App) cycleFocus() {
	switch {
	case a.chatList.HasFocus():
		a.app.SetFocus(a.msgView)
	case a.msgView.HasFocus():
		a.app.SetFocus(a.composer)
	default:
		a.app.SetFocus(a.chatList)
	}
}

func (a *App) flash(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetText(fmt.Sprintf("[yellow]%s[-] [red]%s[-]", a.session, msg))
	})
}
