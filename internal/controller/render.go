package controller

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/rating"
)

// Render writes a plain-text view of the current state to w.
func (c *Controller) Render(w io.Writer) error {
	return RenderState(w, c.State())
}

// RenderState writes s as plain text.
func RenderState(w io.Writer, s State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if s.Visitor.Name != "" {
		fmt.Fprintf(tw, "Visitor:\t%s\n", s.Visitor.Name)
	}
	if s.Err != nil {
		fmt.Fprintf(tw, "Error:\t%s\n", s.Err.Message)
	}

	switch s.Flow {
	case FlowValidating, FlowCheckingSafety, FlowConfirmingSafety, FlowScanning:
		fmt.Fprintf(tw, "Status:\t%s...\n", s.Flow)
	}

	if r := s.Current; r != nil {
		renderReport(tw, r)
	}

	renderRating(tw, s)

	if st := s.Stats; st != nil {
		fmt.Fprintf(tw, "Stats:\t%d scans, %d ratings, %.1f avg, %d sites\n",
			st.TotalScans, st.TotalRatings, st.AverageRating, st.UniqueSites)
	}
	return tw.Flush()
}

func renderReport(w io.Writer, r *model.ScanResult) {
	fmt.Fprintf(w, "URL:\t%s\n", r.URL)
	if r.Title != "" {
		fmt.Fprintf(w, "Title:\t%s\n", r.Title)
	}
	fmt.Fprintf(w, "Grade:\t%s (%.0f/100)\n", r.Grade, r.PerformanceScore)
	if r.LoadTimeMS > 0 {
		fmt.Fprintf(w, "Load time:\t%.0f ms\n", r.LoadTimeMS)
	}
	if r.Status != 0 {
		fmt.Fprintf(w, "HTTP status:\t%d\n", r.Status)
	}
	if r.SafetyStatus != "" {
		d := model.SafetyRating(r.SafetyStatus).Display()
		fmt.Fprintf(w, "Safety:\t%s %s\n", d.Emoji, d.Label)
		for _, reason := range r.SafetyReasons {
			fmt.Fprintf(w, "\t- %s\n", reason)
		}
	}
	if len(r.Bugs) == 0 {
		fmt.Fprintf(w, "Issues:\tnone found\n")
		return
	}
	fmt.Fprintf(w, "Issues:\t%d\n", len(r.Bugs))
	for _, b := range r.Bugs {
		fmt.Fprintf(w, "\t- %s\n", b)
	}
}

func renderRating(w io.Writer, s State) {
	switch st := s.Rating.(type) {
	case rating.Locked:
		fmt.Fprintf(w, "Rating:\t%s\n", st.Message)
		return
	case rating.ModalOpen:
		fmt.Fprintf(w, "Rating:\topen, captcha: %s\n", st.Captcha.Question)
		return
	case rating.PinEntry:
		msg := fmt.Sprintf("enter your PIN (%d attempts left)", st.AttemptsRemaining)
		if st.Message != "" {
			msg = st.Message + "; " + msg
		}
		fmt.Fprintf(w, "Rating:\t%s\n", msg)
		return
	case rating.Accepted:
		line := "thanks for your feedback"
		if st.Stats != nil {
			line += fmt.Sprintf(" (%.1f avg over %d ratings)", st.Stats.AverageRating, st.Stats.TotalRatings)
		}
		fmt.Fprintf(w, "Rating:\t%s\n", line)
		if st.IssuedPin != "" {
			fmt.Fprintf(w, "PIN:\t%s (keep it to rate again)\n", st.IssuedPin)
		}
		return
	case rating.Rejected:
		parts := []string{st.Message}
		if st.Captcha != nil {
			parts = append(parts, "new captcha: "+st.Captcha.Question)
		}
		fmt.Fprintf(w, "Rating:\t%s\n", strings.Join(parts, "; "))
		return
	}
	if s.AlreadyRated {
		fmt.Fprintf(w, "Rating:\talready rated\n")
	} else if s.Current != nil {
		fmt.Fprintf(w, "Rating:\tavailable\n")
	}
}
