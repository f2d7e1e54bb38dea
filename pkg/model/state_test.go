package model

import (
	"errors"
	"strings"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"", KindProcess, false},
		{"process", KindProcess, false},
		{"p", KindProcess, false},
		{"thread", KindThread, false},
		{"t", KindThread, false},
		{"fiber", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTask_Label(t *testing.T) {
	p := Task{ID: 1234, Name: "editor", Kind: KindProcess}
	if got := p.Label(); got != "PID: 1234 editor" {
		t.Errorf("Label() = %q", got)
	}
	th := Task{ID: 7, Name: "ticker", Kind: KindThread}
	if got := th.Label(); got != "TID: 7 ticker" {
		t.Errorf("Label() = %q", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"calc", true},
		{strings.Repeat("a", MaxNameLen), true},
		{"", false},
		{strings.Repeat("a", MaxNameLen+1), false},
		{"../etc", false},
		{"two words", false},
		{"..", false},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.valid && err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", tt.name, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", tt.name, err)
		}
	}
}

func TestResources_Used(t *testing.T) {
	r := Resources{TotalRAM: 2048, AvailableRAM: 1848, TotalStorage: 1000, AvailableStorage: 950}
	if r.UsedRAM() != 200 {
		t.Errorf("UsedRAM = %d, want 200", r.UsedRAM())
	}
	if r.UsedStorage() != 50 {
		t.Errorf("UsedStorage = %d, want 50", r.UsedStorage())
	}
}
