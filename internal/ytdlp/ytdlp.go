// Package ytdlp wraps the yt-dlp command line tool: metadata extraction,
// format downloads with live progress, and self-update.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"yt2qt/internal/model"
	"yt2qt/internal/util"
)

// ErrNotFound is returned when no yt-dlp binary could be located.
var ErrNotFound = errors.New("yt-dlp not found")

// ErrMetadata wraps failures to fetch or decode video metadata.
var ErrMetadata = errors.New("metadata fetch failed")

// FindBinary locates the downloader binary. An explicit path or command
// name wins when it resolves; otherwise yt-dlp is searched on PATH, then
// youtube-dl as a fallback.
func FindBinary(explicit string) (string, error) {
	if explicit != "" {
		if util.FileExists(explicit) {
			return explicit, nil
		}
		if p := util.LookPath(explicit); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("%w at %s", ErrNotFound, explicit)
	}
	for _, name := range []string{"yt-dlp", "youtube-dl"} {
		if p := util.LookPath(name); p != "" {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// Client runs yt-dlp through a CmdRunner.
type Client struct {
	Binary string
	Runner util.CmdRunner
}

// New returns a Client for the given binary path.
func New(binary string, runner util.CmdRunner) *Client {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return &Client{Binary: binary, Runner: runner}
}

// FetchInfo retrieves full metadata for url as a single JSON document.
// A non-zero exit or undecodable output is fatal; there is nothing to do
// without metadata.
func (c *Client) FetchInfo(ctx context.Context, url string) (*model.VideoInfo, error) {
	res, err := c.Runner.Run(ctx, util.CmdSpec{
		Path:          c.Binary,
		Args:          []string{"-J", "--no-playlist", url},
		CaptureStdout: true,
	})
	if err != nil {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrMetadata, msg)
	}
	var info model.VideoInfo
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMetadata, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: response carried no video id", ErrMetadata)
	}
	info.URL = url
	return &info, nil
}

// DownloadRequest describes a single format download into a directory.
type DownloadRequest struct {
	URL      string
	FormatID string // yt-dlp format selector, e.g. "137" or "bestaudio[ext=m4a]/bestaudio"
	Dir      string
	Template string // Output template filename, e.g. "%(id)s.video.%(ext)s"
}

// Download runs one yt-dlp download. Output lines (stdout and stderr
// interleaved) are fed to onLine as they arrive; --newline keeps progress
// on separate lines instead of carriage-return rewrites.
func (c *Client) Download(ctx context.Context, req DownloadRequest, onLine func(string)) (util.CmdResult, error) {
	args := []string{
		"--newline",
		"--no-playlist",
		"-f", req.FormatID,
		"-o", filepath.Join(req.Dir, req.Template),
		req.URL,
	}
	return c.Runner.Run(ctx, util.CmdSpec{
		Path: c.Binary,
		Args: args,
		Line: onLine,
	})
}

// Version reports the installed yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	res, err := c.Runner.Run(ctx, util.CmdSpec{
		Path:          c.Binary,
		Args:          []string{"--version"},
		CaptureStdout: true,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Update runs yt-dlp's self-updater and returns its output.
func (c *Client) Update(ctx context.Context) (string, error) {
	res, err := c.Runner.Run(ctx, util.CmdSpec{
		Path:          c.Binary,
		Args:          []string{"-U"},
		CaptureStdout: true,
	})
	out := strings.TrimSpace(string(res.Stdout))
	if err != nil {
		if msg := strings.TrimSpace(string(res.Stderr)); msg != "" {
			return out, fmt.Errorf("update failed: %s", msg)
		}
		return out, fmt.Errorf("update failed: %w", err)
	}
	return out, nil
}
