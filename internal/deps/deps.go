package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"reelsmith/internal/config"
)

// Requirement defines an external binary reelsmith relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// MediaRequirements lists the binaries the assembly and caption stages shell
// out to. fc-match is optional because fonts can also be found by directory
// scan or an explicit media.font_path.
func MediaRequirements(media config.Media) []Requirement {
	ffmpeg := strings.TrimSpace(media.FFmpegBinary)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := strings.TrimSpace(media.FFprobeBinary)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Required for scene assembly and caption burn-in"},
		{Name: "FFprobe", Command: ffprobe, Description: "Required for media validation"},
		{Name: "fc-match", Command: "fc-match", Description: "Resolves caption fonts by name", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the statuses of unavailable, non-optional binaries.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
