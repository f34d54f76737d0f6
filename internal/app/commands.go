package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/raysh454/fastscan/internal/cli"
	"github.com/raysh454/fastscan/internal/controller"
	"github.com/raysh454/fastscan/internal/history"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/rating"
	"github.com/raysh454/fastscan/internal/scanflow"
	"github.com/raysh454/fastscan/internal/statspoll"
)

var (
	ErrNoScan      = errors.New("no scan to rate, run a scan first")
	ErrPinRequired = errors.New("this visitor has rated before, pass -pin or run the pin command")
)

const timeLayout = "2006-01-02 15:04"

// Run executes the parsed command. Prompts are written to out and answered
// from in.
func (a *Application) Run(ctx context.Context, out io.Writer, in io.Reader) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Debug("running command", logging.Field{Key: "command", Value: a.Args.Command})

	answers := bufio.NewReader(in)
	switch a.Args.Command {
	case cli.CmdScan:
		return a.runScan(ctx, out, answers)
	case cli.CmdRate:
		return a.runRate(ctx, out, answers)
	case cli.CmdPin:
		return a.runPin(ctx, out)
	case cli.CmdHistory:
		return a.runHistory(ctx, out)
	case cli.CmdSearch:
		return a.runSearch(ctx, out)
	case cli.CmdStats:
		return a.runStats(ctx, out)
	case cli.CmdIdentity:
		fmt.Fprintf(out, "%s (%s)\n", a.Visitor.Name, a.Visitor.ID)
		return nil
	case cli.CmdReset:
		// -reset already cleared the state in NewApplication.
		if !a.Args.Reset {
			if err := a.Local.Reset(ctx); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, "Local rating state cleared.")
		return nil
	}
	return fmt.Errorf("%w %q", cli.ErrUnknownCommand, a.Args.Command)
}

func (a *Application) runScan(ctx context.Context, out io.Writer, answers *bufio.Reader) error {
	st, err := a.Controller.Submit(ctx, a.Args.Target, a.confirmer(out, answers))
	if rerr := a.Controller.Render(out); rerr != nil {
		return rerr
	}
	if err == nil && st.Flow == controller.FlowIdle {
		fmt.Fprintln(out, "Scan cancelled.")
	}
	return err
}

// confirmer asks on out before scanning a flagged site. -yes skips the prompt.
func (a *Application) confirmer(out io.Writer, answers *bufio.Reader) scanflow.Confirmer {
	return scanflow.ConfirmFunc(func(ctx context.Context, v *model.ContentSafetyVerdict) (bool, error) {
		fmt.Fprintf(out, "Warning: %s\n", v.Message)
		for _, r := range v.Reasons {
			fmt.Fprintf(out, "  - %s\n", r)
		}
		if a.Args.Yes {
			return true, nil
		}
		answer, err := prompt(out, answers, "Continue anyway? [y/N] ")
		if err != nil {
			return false, err
		}
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes", nil
	})
}

// prompt reads one trimmed line. EOF counts as an empty answer.
func prompt(out io.Writer, answers *bufio.Reader, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := answers.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// openRating restores the last scan and opens the rating form, verifying
// pin first when the server asks for one.
func (a *Application) openRating(ctx context.Context, pin string) (controller.State, error) {
	st, err := a.Controller.Restore(ctx)
	if err != nil {
		return st, err
	}
	if st.Current == nil {
		return st, ErrNoScan
	}
	if st, err = a.Controller.OpenRating(ctx); err != nil {
		return st, err
	}
	if _, ok := st.Rating.(rating.PinEntry); !ok {
		return st, nil
	}
	if pin == "" {
		return st, ErrPinRequired
	}
	return a.Controller.VerifyPin(ctx, pin)
}

// newCaptchaAnswer asks for a different captcha instead of answering.
const newCaptchaAnswer = "new"

// rateAttempts bounds how often a rejected rating is retried with the fresh
// captcha the server handed back.
const rateAttempts = 3

func (a *Application) runRate(ctx context.Context, out io.Writer, answers *bufio.Reader) error {
	st, err := a.openRating(ctx, a.Args.Pin)
	if err != nil {
		_ = a.Controller.Render(out)
		return err
	}
	if _, ok := st.Rating.(rating.ModalOpen); !ok {
		return a.Controller.Render(out)
	}

	for attempt := 1; ; {
		question, ok := formQuestion(st.Rating)
		if !ok {
			break
		}
		answer, err := prompt(out, answers, question+" ")
		if err != nil {
			return err
		}
		if strings.EqualFold(answer, newCaptchaAnswer) {
			if st, err = a.Controller.NewCaptcha(ctx); err != nil {
				_ = a.Controller.Render(out)
				return err
			}
			continue
		}

		st, err = a.Controller.Rate(ctx, rating.Draft{
			Stars:         a.Args.Stars,
			Comment:       a.Args.Comment,
			CaptchaAnswer: answer,
			Pin:           a.Args.Pin,
		})
		if err != nil {
			_ = a.Controller.Render(out)
			return err
		}
		rej, rejected := st.Rating.(rating.Rejected)
		if !rejected || attempt >= rateAttempts {
			break
		}
		attempt++
		fmt.Fprintf(out, "%s, try again (or %q for another question).\n", rej.Message, newCaptchaAnswer)
	}

	if err := a.Controller.Render(out); err != nil {
		return err
	}
	return outcome(st.Rating)
}

// formQuestion is the captcha question the form currently shows, if any.
func formQuestion(s rating.State) (string, bool) {
	switch v := s.(type) {
	case rating.ModalOpen:
		return v.Captcha.Question, true
	case rating.Rejected:
		if v.Captcha != nil {
			return v.Captcha.Question, true
		}
	}
	return "", false
}

// outcome turns a server-driven rating state into the command's exit error.
func outcome(s rating.State) error {
	switch v := s.(type) {
	case rating.Rejected:
		return fmt.Errorf("rating rejected: %s", v.Message)
	case rating.Locked:
		return rating.ErrLocked
	case rating.PinEntry:
		if v.Message != "" {
			return errors.New(v.Message)
		}
		return ErrPinRequired
	}
	return nil
}

func (a *Application) runPin(ctx context.Context, out io.Writer) error {
	st, err := a.openRating(ctx, a.Args.Pin)
	if rerr := a.Controller.Render(out); rerr != nil {
		return rerr
	}
	if err != nil {
		return err
	}
	if err := outcome(st.Rating); err != nil {
		return err
	}
	if _, ok := st.Rating.(rating.ModalOpen); ok {
		fmt.Fprintln(out, "You can rate this scan now.")
	}
	a.Controller.CloseRating()
	return nil
}

func (a *Application) runHistory(ctx context.Context, out io.Writer) error {
	limit := a.Args.Limit
	if limit <= 0 {
		limit = a.Config.Client.HistoryLimit
	}
	h, err := a.Controller.LoadHistory(ctx, limit)
	if err != nil {
		return err
	}

	view := history.NewView(h.Scans)
	for _, host := range a.Args.Hosts {
		view.Toggle(host)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSCANS\tGRADE\tSCORE\tLAST SCAN")
	for _, row := range view.Rows() {
		g := row.Group
		if row.Depth == 0 {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.0f\t%s\n", g.Host, g.Count, g.LatestGrade, g.LatestScore, unixTime(g.LatestTimestamp))
			if changes, ok := history.Changes(*g); ok && !changes.Empty() {
				for _, b := range changes.Added {
					fmt.Fprintf(tw, "\t+ %s\t\t\t\n", b)
				}
				for _, b := range changes.Removed {
					fmt.Fprintf(tw, "\t- %s\t\t\t\n", b)
				}
			}
			continue
		}
		e := g.Entries[row.Entry]
		fmt.Fprintf(tw, "  %s\t\t%s\t%.0f\t%s\n", e.URL, e.Grade, e.PerformanceScore, unixTime(e.Timestamp))
	}
	if len(h.Scans) == 0 {
		fmt.Fprintln(tw, "(no scans yet)")
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FEEDBACK\tRATINGS\tAVERAGE\t\t")
	for _, g := range h.Feedback {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t\t\n", g.Host, g.Count, g.AverageRating)
		for _, e := range g.Entries {
			fmt.Fprintf(tw, "  %d/5 %s\t%q\t\t\t\n", e.Rating, e.VisitorName, e.Comment)
		}
	}
	return tw.Flush()
}

func (a *Application) runSearch(ctx context.Context, out io.Writer) error {
	s := history.NewSearcher(a.API, 0, nil, a.Logger)
	s.SetFilter(a.Args.Filter)
	s.SetSort(a.Args.Sort)
	s.SetQuery(a.Args.Target)
	// Only the immediate search below is wanted.
	s.Close()

	resp, err := s.Search(ctx, a.Args.Page)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tGRADE\tSCORE\tSAFETY\tSCANNED")
	for _, w := range resp.Results {
		safety := model.SafetyUnknown.Display().Label
		if w.KidsSafety != nil {
			safety = w.KidsSafety.Rating.Display().Label
		}
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%s\t%s\n", w.URL, w.Grade, w.PerformanceScore, safety, unixTime(w.Timestamp))
	}
	pages := 1
	if resp.PerPage > 0 && resp.Total > 0 {
		pages = (resp.Total + resp.PerPage - 1) / resp.PerPage
	}
	fmt.Fprintf(tw, "\npage %d of %d, %d results\n", resp.Page, pages, resp.Total)
	return tw.Flush()
}

func (a *Application) runStats(ctx context.Context, out io.Writer) error {
	if !a.Args.Watch {
		st, err := a.API.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(out, *st)
		return nil
	}

	show := func(s model.Stats) { printStats(out, s) }
	if !strings.EqualFold(a.Config.Client.StatsTransport, StatsWS) {
		a.Controller.StartStats(ctx, a.Config.Client.StatsInterval, show)
		<-ctx.Done()
		a.Controller.StopStats()
		return nil
	}

	sub, err := statspoll.NewSubscriber(a.Config.Client.BackendURL, a.Logger)
	if err != nil {
		return err
	}
	err = sub.Run(ctx, show)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printStats(out io.Writer, s model.Stats) {
	fmt.Fprintf(out, "%d scans, %d ratings, %.1f avg, %d sites\n",
		s.TotalScans, s.TotalRatings, s.AverageRating, s.UniqueSites)
}

func unixTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format(timeLayout)
}
