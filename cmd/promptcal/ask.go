package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"promptcal/internal/ai"
	"promptcal/internal/model"
)

var askImage string

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send one prompt to the assistant and create the events it returns",
	Example: `  promptcal ask "明天下午兩點跟 Alex 開會"
  promptcal ask --image flyer.jpg "把這張海報上的活動加入行事曆"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askImage, "image", "", "image file to send with the prompt")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	conv := a.sessions.Create()
	if askImage != "" {
		img, err := loadImage(askImage)
		if err != nil {
			return err
		}
		conv.AttachImage(img)
	}

	res, err := conv.Submit(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printTurn(cmd.OutOrStdout(), res.Messages, res.Created, a.loc)
	return nil
}

func printTurn(w io.Writer, messages []model.Message, created []model.CalendarEvent, loc *time.Location) {
	for _, m := range messages {
		if m.Role == model.RoleBot {
			fmt.Fprintln(w, m.Content)
		}
	}
	for _, ev := range created {
		fmt.Fprintf(w, "  + %s  %s\n", formatWhen(ev, loc), ev.Title)
	}
}

func formatWhen(ev model.CalendarEvent, loc *time.Location) string {
	start, end := ev.StartTime.In(loc), ev.EndTime.In(loc)
	if ev.AllDay {
		if start.Format(time.DateOnly) == end.Format(time.DateOnly) {
			return start.Format(time.DateOnly) + " (all day)"
		}
		return start.Format(time.DateOnly) + " - " + end.Format(time.DateOnly) + " (all day)"
	}
	return start.Format("2006-01-02 15:04") + "-" + end.Format("15:04")
}

// loadImage reads an image file, typing it by extension and falling back to
// content sniffing.
func loadImage(path string) (*ai.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if !strings.HasPrefix(mt, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mt)
	}
	return &ai.Image{Data: data, MIMEType: mt, Name: filepath.Base(path)}, nil
}
