package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// NoopResolver is the default automated resolver: it never clears a
// challenge, so every captcha escalates straight to the human prompter.
type NoopResolver struct{}

func (NoopResolver) Resolve(context.Context, string, *models.Payload) bool { return false }

// ConsolePrompter asks a human to solve the captcha in the visible browser
// window and waits for an Enter keypress on In. Used by the batch CLI when
// running with a headful browser.
type ConsolePrompter struct {
	In      io.Reader
	Out     io.Writer
	MaxWait time.Duration
}

// Prompt blocks until the operator acknowledges, the wait budget runs out,
// or the context is canceled. Only acknowledgement returns nil.
func (p *ConsolePrompter) Prompt(ctx context.Context, keyword string) error {
	fmt.Fprintf(p.Out, "\nCAPTCHA detected while searching %q.\n", keyword)
	fmt.Fprintf(p.Out, "Solve it in the browser window, then press Enter (waiting up to %s)...\n", p.MaxWait)

	ack := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(p.In).ReadString('\n')
		ack <- err
	}()

	timer := time.NewTimer(p.MaxWait)
	defer timer.Stop()

	select {
	case err := <-ack:
		if err != nil {
			return models.NewScrapeError(models.ErrCodeCaptchaUnresolved, "operator input closed", err)
		}
		return nil
	case <-timer.C:
		return models.NewScrapeError(models.ErrCodeCaptchaUnresolved, "operator did not respond in time", nil)
	case <-ctx.Done():
		return models.NewScrapeError(models.ErrCodeCaptchaUnresolved, "scrape canceled during intervention", ctx.Err())
	}
}
