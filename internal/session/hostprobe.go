package session

import (
	"os/exec"
	"strings"
)

// detectArchFlag probes binaryPath with the external `file` and `lipo`
// tools to decide whether the orchestrator needs an explicit slice
// selection flag for a Universal/Fat Mach-O binary carrying an arm64
// slice. It is a best-effort host probe: any failure of the external
// tools simply yields no flag (auto-detect), never an error.
func detectArchFlag(binaryPath string) string {
	fileOut, err := exec.Command("file", binaryPath).Output()
	if err != nil {
		return ""
	}
	lower := strings.ToLower(string(fileOut))
	isFat := strings.Contains(lower, "universal") || strings.Contains(lower, "fat")
	if !isFat || !strings.Contains(lower, "mach-o") {
		return ""
	}

	lipoOut, err := exec.Command("lipo", "-archs", binaryPath).Output()
	if err != nil {
		return ""
	}
	if strings.Contains(strings.ToLower(string(lipoOut)), "arm64") {
		return "-TFat Mach-O file, 2. ARM64"
	}
	return ""
}
