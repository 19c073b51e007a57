package audio

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
)

// ErrInvalidFile is matched by every rejection from Validator.
var ErrInvalidFile = errors.New("invalid audio file")

// AllowedExtensions are the upload extensions ffmpeg and the provider both accept.
var AllowedExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".wav":  {},
	".webm": {},
	".ogg":  {},
	".flac": {},
	".aac":  {},
}

// containers whose sniffed type is not under audio/ but which carry audio-only uploads.
var audioContainers = map[string]struct{}{
	"video/webm":      {},
	"video/mp4":       {},
	"application/ogg": {},
}

// FileInfo is what the validator learned about an accepted upload.
type FileInfo struct {
	MIME      string
	Extension string
	Duration  time.Duration
}

// Validator checks uploads by size, extension and sniffed content, never by client-supplied headers.
type Validator struct {
	maxBytes int64
}

func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

func (v *Validator) Validate(data []byte, fileName string) (FileInfo, error) {
	if len(data) == 0 {
		return FileInfo{}, fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return FileInfo{}, fmt.Errorf("%w: file is larger than %d MB", ErrInvalidFile, v.maxBytes/(1024*1024))
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := AllowedExtensions[ext]; !ok {
		return FileInfo{}, fmt.Errorf("%w: extension %q is not allowed, accepted: %s",
			ErrInvalidFile, ext, strings.Join(allowedList(), ", "))
	}

	mtype := mimetype.Detect(data)
	if !isAudio(mtype) {
		return FileInfo{}, fmt.Errorf("%w: content does not look like audio (%s)", ErrInvalidFile, mtype.String())
	}

	info := FileInfo{MIME: mtype.String(), Extension: ext}
	if mtype.Is("audio/wav") {
		duration, err := wavDuration(data)
		if err != nil {
			return FileInfo{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		info.Duration = duration
	}
	return info, nil
}

func isAudio(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
		if _, ok := audioContainers[m.String()]; ok {
			return true
		}
	}
	return false
}

func wavDuration(data []byte) (time.Duration, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, errors.New("corrupt WAV header")
	}
	duration, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("cannot read WAV duration: %w", err)
	}
	return duration, nil
}

func allowedList() []string {
	out := make([]string, 0, len(AllowedExtensions))
	for ext := range AllowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
