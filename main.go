package main

import (
	"os"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
