// Package synth invokes the platform speech engine to discover voices and
// render text segments to WAV files.
package synth

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// baseWordsPerMinute is the rate the wpm-based backends use at speed 1.0.
const baseWordsPerMinute = 175

// speechCommand is one prepared speech-engine invocation. Text always rides
// on stdin so quoting never depends on segment content.
type speechCommand struct {
	name  string
	args  []string
	stdin string
}

// sapiSynthesisScript renders stdin text to a WAV file via System.Speech.
// The voice name and rate are injected as single-quoted PowerShell literals.
const sapiSynthesisScript = `Add-Type -AssemblyName System.Speech;` +
	`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;` +
	`$s.SelectVoice('%s');` +
	`$s.Rate = %d;` +
	`$s.SetOutputToWaveFile('%s');` +
	`$s.Speak([Console]::In.ReadToEnd());` +
	`$s.Dispose();`

// sapiVoicesScript lists installed voices as JSON.
const sapiVoicesScript = `Add-Type -AssemblyName System.Speech;` +
	`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;` +
	`$s.GetInstalledVoices() | ForEach-Object { $_.VoiceInfo } |` +
	` Select-Object Name, Gender, Culture | ConvertTo-Json -Compress`

// synthesisCommand builds the platform invocation for one segment.
func synthesisCommand(goos, voiceID string, speed float64, text, outputPath string) speechCommand {
	switch goos {
	case "windows":
		script := fmt.Sprintf(sapiSynthesisScript,
			escapeSingleQuotes(voiceID), sapiRate(speed), escapeSingleQuotes(outputPath))
		return speechCommand{
			name:  "powershell",
			args:  []string{"-NoProfile", "-NonInteractive", "-Command", script},
			stdin: text,
		}
	case "darwin":
		return speechCommand{
			name: "say",
			args: []string{
				"-v", voiceID,
				"-r", strconv.Itoa(wordsPerMinute(speed)),
				"-o", outputPath,
				"--data-format=LEI16@22050",
			},
			stdin: text,
		}
	default:
		return speechCommand{
			name: "espeak-ng",
			args: []string{
				"-v", voiceID,
				"-s", strconv.Itoa(wordsPerMinute(speed)),
				"-w", outputPath,
				"--stdin",
			},
			stdin: text,
		}
	}
}

// voicesCommand builds the platform voice-discovery invocation.
func voicesCommand(goos string) speechCommand {
	switch goos {
	case "windows":
		return speechCommand{
			name: "powershell",
			args: []string{"-NoProfile", "-NonInteractive", "-Command", sapiVoicesScript},
		}
	case "darwin":
		return speechCommand{name: "say", args: []string{"-v", "?"}}
	default:
		return speechCommand{name: "espeak-ng", args: []string{"--voices"}}
	}
}

// fallbackTool returns an alternate binary name tried when the primary is
// missing, or empty when the platform has a single engine.
func fallbackTool(goos string) string {
	if goos == "windows" || goos == "darwin" {
		return ""
	}
	return "espeak"
}

// parseVoices maps discovery output to the voice collection.
func parseVoices(goos, stdout string) ([]domain.Voice, error) {
	switch goos {
	case "windows":
		return parseSAPIVoices(stdout)
	case "darwin":
		return parseSayVoices(stdout), nil
	default:
		return parseEspeakVoices(stdout), nil
	}
}

// sapiVoice mirrors the JSON shape emitted by the PowerShell voice query.
type sapiVoice struct {
	Name    string `json:"Name"`
	Gender  string `json:"Gender"`
	Culture string `json:"Culture"`
}

// parseSAPIVoices decodes the JSON voice list. PowerShell collapses a single
// element to a bare object, so both shapes are accepted.
func parseSAPIVoices(stdout string) ([]domain.Voice, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, nil
	}

	var raw []sapiVoice
	if strings.HasPrefix(trimmed, "{") {
		var one sapiVoice
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return nil, fmt.Errorf("parse voice list: %w", err)
		}
		raw = []sapiVoice{one}
	} else if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("parse voice list: %w", err)
	}

	voices := make([]domain.Voice, 0, len(raw))
	for i, v := range raw {
		if v.Name == "" {
			continue
		}
		voices = append(voices, domain.Voice{
			ID:          v.Name,
			DisplayName: v.Name,
			Gender:      v.Gender,
			Locale:      v.Culture,
			IsDefault:   i == 0,
		})
	}
	return voices, nil
}

// parseSayVoices parses `say -v ?` lines: "Name    locale    # sample".
func parseSayVoices(stdout string) []domain.Voice {
	var voices []domain.Voice
	for _, line := range strings.Split(stdout, "\n") {
		name, rest, found := cutVoiceLine(line)
		if !found {
			continue
		}
		locale := strings.Fields(rest)[0]
		voices = append(voices, domain.Voice{
			ID:          name,
			DisplayName: name,
			Locale:      locale,
			IsDefault:   len(voices) == 0,
		})
	}
	return voices
}

// cutVoiceLine splits one `say -v ?` line into voice name and remainder.
// Voice names may contain single spaces; the locale column is separated by
// runs of at least two spaces.
func cutVoiceLine(line string) (string, string, bool) {
	line = strings.TrimRight(strings.TrimSuffix(line, "\r"), " ")
	if strings.TrimSpace(line) == "" {
		return "", "", false
	}
	idx := strings.Index(line, "  ")
	if idx <= 0 {
		return "", "", false
	}
	name := strings.TrimSpace(line[:idx])
	rest := strings.TrimSpace(line[idx:])
	if name == "" || rest == "" {
		return "", "", false
	}
	return name, rest, true
}

// parseEspeakVoices parses `espeak-ng --voices` column output.
func parseEspeakVoices(stdout string) []domain.Voice {
	var voices []domain.Voice
	lines := strings.Split(stdout, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		// Header row: "Pty Language Age/Gender VoiceName File Other Languages".
		if i == 0 || len(fields) < 4 {
			continue
		}
		gender := ""
		switch {
		case strings.Contains(fields[2], "M"):
			gender = "male"
		case strings.Contains(fields[2], "F"):
			gender = "female"
		}
		voices = append(voices, domain.Voice{
			ID:          fields[3],
			DisplayName: fields[3],
			Gender:      gender,
			Locale:      fields[1],
			IsDefault:   len(voices) == 0,
		})
	}
	return voices
}

// sapiRate maps the normalized speed multiplier to the SAPI -10..10 scale.
func sapiRate(speed float64) int {
	rate := int(math.Round(10 * math.Log2(speed)))
	if rate < -10 {
		rate = -10
	}
	if rate > 10 {
		rate = 10
	}
	return rate
}

// wordsPerMinute maps the speed multiplier to a words-per-minute rate.
func wordsPerMinute(speed float64) int {
	return int(math.Round(baseWordsPerMinute * speed))
}

// escapeSingleQuotes doubles quotes for PowerShell single-quoted literals.
func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
