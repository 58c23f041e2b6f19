package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/ccastromar/aos-healthcare-assistant/internal/app"
	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/crew"
	"github.com/ccastromar/aos-healthcare-assistant/internal/guard"
	"github.com/ccastromar/aos-healthcare-assistant/internal/report"
	"github.com/ccastromar/aos-healthcare-assistant/internal/store"
)

type consulter interface {
	Run(ctx context.Context, p guard.Patient, crewName, mode string) (*store.Consultation, *crew.Output, error)
}

var consultCtor = func(ctx context.Context, env *config.EnvVars) (consulter, func(), error) {
	c, err := app.Build(ctx, env)
	if err != nil {
		return nil, nil, err
	}
	return c.Runner, func() { _ = c.DB.Close() }, nil
}

var consultFlags struct {
	gender   string
	age      int
	symptoms string
	history  string
	crew     string
	out      string
	plain    bool
}

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Run one consultation and write the .docx report",
	Example: `  medcrew consult --gender Female --age 34 \
    --symptoms "fever, cough, headache" --history "asthma"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return consult(cmd.Context(), cmd.OutOrStdout(), env)
	},
}

func init() {
	f := consultCmd.Flags()
	f.StringVar(&consultFlags.gender, "gender", "Male", "patient gender (Male, Female, Other)")
	f.IntVar(&consultFlags.age, "age", guard.DefaultAge, "patient age")
	f.StringVar(&consultFlags.symptoms, "symptoms", "", "symptoms, e.g. \"fever, cough, headache\"")
	f.StringVar(&consultFlags.history, "history", "", "medical history, e.g. \"diabetes, hypertension\"")
	f.StringVar(&consultFlags.crew, "crew", "", "crew to run (default DEFAULT_CREW)")
	f.StringVarP(&consultFlags.out, "out", "o", report.Filename, "where to write the Word report; empty to skip")
	f.BoolVar(&consultFlags.plain, "plain", false, "print raw markdown instead of rendering it")
	_ = consultCmd.MarkFlagRequired("symptoms")
}

func consult(ctx context.Context, w io.Writer, env *config.EnvVars) error {
	p := guard.Patient{
		Gender:         consultFlags.gender,
		Age:            consultFlags.age,
		Symptoms:       consultFlags.symptoms,
		MedicalHistory: consultFlags.history,
	}
	p.Normalize()
	if err := guard.ValidatePatient(p); err != nil {
		return err
	}

	c, closeFn, err := consultCtor(ctx, env)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Fprintln(w, "🩺 Generating recommendations...")
	rec, out, err := c.Run(ctx, p, consultFlags.crew, "cli")
	if err != nil {
		return fmt.Errorf("consultation failed: %w", err)
	}

	text := report.ResultText(out.AsMap())
	fmt.Fprintln(w, "✅ Diagnosis and treatment plan generated successfully!")
	fmt.Fprintln(w)
	fmt.Fprint(w, renderMarkdown(text, consultFlags.plain))

	if consultFlags.out != "" {
		doc, err := report.GenerateDOCX(report.Title, text)
		if err != nil {
			return err
		}
		if err := os.WriteFile(consultFlags.out, doc, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(w, "\n📥 Report written to %s (consultation %s)\n", consultFlags.out, rec.ID)
	}
	return nil
}

// renderMarkdown renders text for the terminal, falling back to raw text.
func renderMarkdown(text string, plain bool) string {
	if plain {
		return text + "\n"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
