package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/repository"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

type fileList []string

func (f *fileList) String() string     { return strings.Join(*f, ",") }
func (f *fileList) Set(v string) error { *f = append(*f, v); return nil }

var (
	statePath = flag.String("state", defaultStatePath(), "Path of the chat state file")
	endpoint  = flag.String("endpoint", "http://localhost:8080/api/chat", "Chat endpoint URL")
	token     = flag.String("token", os.Getenv("ASKDESK_ADMIN_API_KEY"), "Bearer token for the chat endpoint")
	list      = flag.Bool("list", false, "List chats")
	newChat   = flag.Bool("new", false, "Start a new chat and select it")
	slug      = flag.String("chat", "", "Select the chat with this slug")
	rename    = flag.String("rename", "", "Rename the selected chat")
	remove    = flag.Bool("delete", false, "Delete the selected chat")
	send      = flag.String("send", "", "Send a message to the selected chat")
	model     = flag.String("model", "", "Model to use for -send")
	verbose   = flag.Bool("v", false, "Log warnings to stderr")
	files     fileList
)

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return chat.StateKey + ".json"
	}
	return filepath.Join(home, ".askdesk", chat.StateKey+".json")
}

func main() {
	flag.Var(&files, "file", "Attach a file to -send (repeatable)")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		var err error
		if logger, err = cfg.Build(); err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := chat.NewRegistry(
		chat.WithStore(repository.NewFileStateStore(*statePath)),
		chat.WithLogger(logger),
		chat.WithPersistErrorHandler(func(err error) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}),
	)
	if err := registry.Restore(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	code := run(ctx, registry, logger)
	if err := registry.Flush(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		code = 1
	}
	os.Exit(code)
}

func run(ctx context.Context, registry *chat.Registry, logger *zap.Logger) int {
	if *newChat {
		_, s := registry.CreateChat("", *model)
		fmt.Printf("Started chat %s\n", s)
	}
	if *slug != "" {
		c := registry.ChatBySlug(*slug)
		if c == nil {
			fmt.Fprintf(os.Stderr, "error: no chat %q\n", *slug)
			return 1
		}
		registry.SelectChat(c.ID)
	}

	if *list {
		printList(registry)
		return 0
	}

	selected := registry.Selected()
	if selected == nil {
		if *rename != "" || *remove || *send != "" {
			fmt.Fprintln(os.Stderr, "error: no chat selected, use -new or -chat")
			return 1
		}
		printList(registry)
		return 0
	}

	switch {
	case *remove:
		registry.DeleteChat(selected.ID)
		fmt.Printf("Deleted chat %s\n", selected.Slug)
		return 0
	case *rename != "":
		registry.RenameChat(selected.ID, *rename)
		fmt.Printf("Renamed chat %s\n", selected.Slug)
		return 0
	case *send != "":
		return sendMessage(ctx, registry, selected, logger)
	default:
		printTranscript(registry.Chat(selected.ID))
		return 0
	}
}

func sendMessage(ctx context.Context, registry *chat.Registry, c *domain.ChatSession, logger *zap.Logger) int {
	attachments := make([]domain.Attachment, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachments = append(attachments, domain.Attachment{Name: filepath.Base(path), Type: contentType, Data: data})
	}

	dispatcher := chat.NewDispatcher(*endpoint, chat.WithAuthToken(*token))
	sender := chat.NewSender(registry, dispatcher, logger)

	modelName := *model
	if modelName == "" {
		modelName = c.Model
	}

	updates := make(chan domain.Message, 64)
	var sendErr error

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		defer close(updates)
		_, sendErr = sender.Send(ctx, chat.SendRequest{
			ChatID:   c.ID,
			Content:  *send,
			Model:    modelName,
			Files:    attachments,
			OnUpdate: func(m domain.Message) { updates <- m },
		})
	})
	wg.Go(func() {
		printed := 0
		fmt.Print("assistant> ")
		for m := range updates {
			if len(m.Content) > printed {
				fmt.Print(m.Content[printed:])
				printed = len(m.Content)
			}
		}
		fmt.Println()
	})
	wg.Wait()

	if sendErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", sendErr)
		return 1
	}
	return 0
}

func printList(registry *chat.Registry) {
	selected := registry.SelectedID()
	chats := registry.Chats()
	if len(chats) == 0 {
		fmt.Println("No chats. Start one with -new.")
		return
	}
	for _, c := range chats {
		marker := " "
		if c.ID == selected {
			marker = "*"
		}
		fmt.Printf("%s %s  %-40s  %s  %d messages\n", marker, c.Slug, c.Title, c.Model, len(c.Messages))
	}
}

func printTranscript(c *domain.ChatSession) {
	fmt.Printf("# %s (%s)\n\n", c.Title, c.Model)
	for _, m := range c.Messages {
		fmt.Printf("%s> %s\n", m.Role, m.Content)
		for _, f := range m.AttachedFiles {
			fmt.Printf("    [%s, %s, %d bytes]\n", f.Name, f.Type, f.Size)
		}
	}
}
