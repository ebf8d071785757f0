package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type preconditionChecker interface {
	CheckPreconditions(ctx context.Context, year int, schoolID string) (*models.PreconditionReport, error)
}

type transitionExecutor interface {
	Run(ctx context.Context, req models.TransitionRequest, progress models.ProgressFunc) (*models.TransitionResult, error)
}

type operatorLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type commandLine struct {
	checker   preconditionChecker
	executor  transitionExecutor
	operators operatorLookup
	in        io.Reader
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  check -year YEAR -school SCHOOL_ID - show calendar, pending grades and active enrollments")
	fmt.Fprintln(cli.out, "  run -year YEAR -school SCHOOL_ID -operator EMAIL [-dry-run] [-backup-override] [-yes] - run the transition")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	checkCmd := flag.NewFlagSet("check", flag.ContinueOnError)
	checkCmd.SetOutput(cli.out)
	checkYear := checkCmd.Int("year", 0, "Origin school year.")
	checkSchool := checkCmd.String("school", "", "School ID.")

	runCmd := flag.NewFlagSet("run", flag.ContinueOnError)
	runCmd.SetOutput(cli.out)
	runYear := runCmd.Int("year", 0, "Origin school year. Enrollments move to year+1.")
	runSchool := runCmd.String("school", "", "School ID.")
	runOperator := runCmd.String("operator", "", "Operator email. The password will be prompted next.")
	runDry := runCmd.Bool("dry-run", false, "Simulate: every write is rolled back.")
	runOverride := runCmd.Bool("backup-override", false, "Continue when the database backup fails.")
	runYes := runCmd.Bool("yes", false, "Skip the confirmation question.")

	switch args[1] {
	case "check":
		if err := checkCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *checkYear <= 0 || *checkSchool == "" {
			checkCmd.Usage()
			return errHelp
		}
		_, err := cli.check(ctx, *checkYear, *checkSchool)
		return err
	case "run":
		if err := runCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *runYear <= 0 || *runSchool == "" || *runOperator == "" {
			runCmd.Usage()
			return errHelp
		}
		return cli.transition(ctx, models.TransitionRequest{
			OriginYear:     *runYear,
			SchoolID:       *runSchool,
			DryRun:         *runDry,
			BackupOverride: *runOverride,
		}, *runOperator, *runYes)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) check(ctx context.Context, year int, schoolID string) (*models.PreconditionReport, error) {
	report, err := cli.checker.CheckPreconditions(ctx, year, schoolID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cli.out, "Ano letivo %d, escola %s\n", report.OriginYear, report.SchoolID)
	calendar := "aberto"
	if report.CalendarEnded {
		calendar = "encerrado"
	}
	fmt.Fprintf(cli.out, "  Calendário: %s (fim %s)\n", calendar, report.CalendarEnd.Format("02/01/2006"))
	fmt.Fprintf(cli.out, "  Matrículas ativas: %d\n", report.ActiveEnrollments)
	s := report.PendingSummary
	fmt.Fprintf(cli.out, "  Pendências: %d turma(s), %d aluno(s), %d nota(s) faltante(s), %d erro(s)\n", s.Sections, s.Students, s.MissingScores, s.Errors)
	if report.PendingGrades != nil {
		for _, section := range report.PendingGrades.Sections {
			fmt.Fprintf(cli.out, "    %dº bimestre - %s\n", section.Term, section.Key)
			for _, subject := range section.SubjectsWithoutScores {
				fmt.Fprintf(cli.out, "      %s: sem lançamento\n", subject)
			}
			for _, student := range section.Students {
				fmt.Fprintf(cli.out, "      %s: %s\n", student.Name, strings.Join(student.SubjectsMissing, ", "))
			}
		}
		for _, e := range report.PendingGrades.Errors {
			fmt.Fprintf(cli.out, "    erro (%dº bimestre, %s): %s\n", e.Term, e.Cycle, e.Message)
		}
	}
	if report.Ready {
		fmt.Fprintln(cli.out, "Pronto para a transição.")
	} else {
		fmt.Fprintln(cli.out, "Transição bloqueada.")
	}
	return report, nil
}

func (cli *commandLine) transition(ctx context.Context, req models.TransitionRequest, operatorEmail string, skipConfirm bool) error {
	operator, err := cli.operators.FindByEmail(ctx, operatorEmail)
	if err != nil {
		return fmt.Errorf("operator %s: %w", operatorEmail, err)
	}
	if !operator.Active || !operator.Role.CanRunTransition() {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("operator %s cannot run transitions", operatorEmail))
	}
	req.OperatorID = operator.ID

	report, err := cli.check(ctx, req.OriginYear, req.SchoolID)
	if err != nil {
		return err
	}
	if !report.Ready {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "preconditions not met")
	}

	if !req.DryRun {
		if !skipConfirm && !cli.confirm(req) {
			return appErrors.Clone(appErrors.ErrConfirmationAbort, "transition cancelled by operator")
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			return appErrors.Clone(appErrors.ErrReauthFailed, "confirmation password required")
		}
		req.Password = string(pwd)
	}

	prefix := ""
	if req.DryRun {
		prefix = "[SIMULAÇÃO] "
	}
	result, runErr := cli.executor.Run(ctx, req, func(e models.ProgressEvent) {
		fmt.Fprintf(cli.out, "%s%s: %s\n", prefix, e.State, e.Message)
	})
	if result != nil {
		cli.printResult(result)
	}
	return runErr
}

func (cli *commandLine) confirm(req models.TransitionRequest) bool {
	fmt.Fprintf(cli.out, "Encerrar %d e rematricular em %d na escola %s? [s/N] ", req.OriginYear, req.DestinationYear(), req.SchoolID)
	answer, _ := bufio.NewReader(cli.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "sim":
		return true
	default:
		return false
	}
}

func (cli *commandLine) printResult(result *models.TransitionResult) {
	title := "Resultado"
	if result.DryRun {
		title = "SIMULAÇÃO (nenhuma alteração gravada)"
	}
	c := result.Counters
	fmt.Fprintf(cli.out, "%s: %d → %d, status %s\n", title, result.OriginYear, result.DestinationYear, result.Status)
	fmt.Fprintf(cli.out, "  Matrículas encerradas: %d\n", c.ClosedEnrollments)
	fmt.Fprintf(cli.out, "  Matrículas criadas:    %d\n", c.CreatedEnrollments)
	fmt.Fprintf(cli.out, "  Promovidos:            %d\n", c.Promoted)
	fmt.Fprintf(cli.out, "  Retidos:               %d\n", c.Retained)
	fmt.Fprintf(cli.out, "  Concluintes:           %d\n", c.Graduates)
	if c.Excluded > 0 {
		fmt.Fprintf(cli.out, "  Excluídos:             %d\n", c.Excluded)
	}
	if c.DuplicateEnrollments > 0 {
		fmt.Fprintf(cli.out, "  Matrículas duplicadas: %d\n", c.DuplicateEnrollments)
	}
	if c.WithoutProgression > 0 {
		fmt.Fprintf(cli.out, "  Sem progressão:        %d\n", c.WithoutProgression)
	}
	if result.ReportPath != "" {
		fmt.Fprintf(cli.out, "  Relatório: %s\n", result.ReportPath)
	}
	if result.Error != "" {
		fmt.Fprintf(cli.out, "  Erro: %s\n", result.Error)
	}
}
