package rsyncopts

import (
	"testing"

	"github.com/oferchen/gorsync/internal/rsyncos"
)

func TestParseArgumentsRecognizesShortFlags(t *testing.T) {
	pc, err := ParseArguments(rsyncos.Std{}, []string{"-rl", "src/", "dest/"})
	if err != nil {
		t.Fatal(err)
	}
	if !pc.Options.Recurse() {
		t.Error("expected Recurse() to be true for -r")
	}
	if !pc.Options.PreserveLinks() {
		t.Error("expected PreserveLinks() to be true for -l")
	}
	if len(pc.RemainingArgs) != 2 || pc.RemainingArgs[0] != "src/" || pc.RemainingArgs[1] != "dest/" {
		t.Errorf("RemainingArgs = %v, want [src/ dest/]", pc.RemainingArgs)
	}
}

func TestParseArgumentsRecognizesLongFlags(t *testing.T) {
	pc, err := ParseArguments(rsyncos.Std{}, []string{"--recursive", "--perms", "src/", "dest/"})
	if err != nil {
		t.Fatal(err)
	}
	if !pc.Options.Recurse() || !pc.Options.PreservePerms() {
		t.Error("expected --recursive and --perms to be recognized")
	}
}

func TestParseArgumentsServerSenderRequiresServer(t *testing.T) {
	if _, err := ParseArguments(rsyncos.Std{}, []string{"--sender"}); err == nil {
		t.Error("expected an error for --sender without --server")
	}

	pc, err := ParseArguments(rsyncos.Std{}, []string{"--server", "--sender", "."})
	if err != nil {
		t.Fatal(err)
	}
	if !pc.Options.Server() || !pc.Options.Sender() {
		t.Error("expected Server() and Sender() to both be true")
	}
}

func TestParseArgumentsUnknownLongOptionErrors(t *testing.T) {
	_, err := ParseArguments(rsyncos.Std{}, []string{"--definitely-not-a-real-flag"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized long option")
	}
	perr, ok := err.(*PoptError)
	if !ok {
		t.Fatalf("error type = %T, want *PoptError", err)
	}
	if perr.Option != "--definitely-not-a-real-flag" {
		t.Errorf("PoptError.Option = %q, want the offending flag", perr.Option)
	}
}

func TestParseArgumentsDoubleDashStopsOptionParsing(t *testing.T) {
	pc, err := ParseArguments(rsyncos.Std{}, []string{"-r", "--", "-not-an-option"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pc.RemainingArgs) != 1 || pc.RemainingArgs[0] != "-not-an-option" {
		t.Errorf("RemainingArgs = %v, want [-not-an-option]", pc.RemainingArgs)
	}
}

func TestParseArgumentsProtocolTakesIntArgument(t *testing.T) {
	pc, err := ParseArguments(rsyncos.Std{}, []string{"--protocol", "30"})
	if err != nil {
		t.Fatal(err)
	}
	if pc.Options.ConnectTimeoutSeconds() != 0 {
		t.Errorf("unrelated option mutated: ConnectTimeoutSeconds() = %d", pc.Options.ConnectTimeoutSeconds())
	}
}

func TestParseArgumentsIntOptionRejectsNonNumericArgument(t *testing.T) {
	_, err := ParseArguments(rsyncos.Std{}, []string{"--protocol", "not-a-number"})
	if err == nil {
		t.Fatal("expected an error for a non-numeric --protocol argument")
	}
}
