package ui

import "yt2qt/internal/progress"

type depsCheckedMsg struct {
	YTDLPPath  string
	FFmpegPath string // empty when ffmpeg is missing
	Err        error
}

type jobUpdateMsg struct {
	U progress.Update
}

type jobLogMsg struct {
	L progress.Log
}

type jobResultMsg struct {
	R progress.Result
}

type allDoneMsg struct{}
