package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16
)

// Archiver keeps a local copy of the microphone audio sent to the vendor.
// During the session it appends raw PCM16; on end the capture is wrapped
// into a playable WAV file.
type Archiver struct {
	audioDir string

	mu         sync.Mutex
	sessionID  string
	rawPath    string
	rawFile    *os.File
	sampleRate int
}

func NewArchiver(audioDir string) *Archiver {
	if audioDir == "" {
		audioDir = filepath.Join("data", "audio")
	}
	return &Archiver{audioDir: audioDir, sampleRate: defaultSampleRate}
}

func (a *Archiver) SetSampleRate(sampleRate int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sampleRate > 0 {
		a.sampleRate = sampleRate
	}
}

func (a *Archiver) StartSession(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	if a.rawFile != nil {
		_ = a.rawFile.Close()
	}

	rawPath := filepath.Join(a.audioDir, sessionID+".pcm")
	rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open raw pcm file: %w", err)
	}

	a.sessionID = sessionID
	a.rawPath = rawPath
	a.rawFile = rawFile

	return nil
}

// EndSession finalizes the capture and returns the WAV path, or "" when no
// session was recording.
func (a *Archiver) EndSession() (string, error) {
	a.mu.Lock()
	if a.sessionID == "" || a.rawFile == nil {
		a.mu.Unlock()
		return "", nil
	}

	sessionID := a.sessionID
	rawPath := a.rawPath
	rawFile := a.rawFile
	sampleRate := a.sampleRate

	a.sessionID = ""
	a.rawPath = ""
	a.rawFile = nil
	a.mu.Unlock()

	if err := rawFile.Close(); err != nil {
		return "", fmt.Errorf("close raw pcm file: %w", err)
	}

	wavPath := filepath.Join(a.audioDir, sessionID+".wav")
	if err := pcmToWav(rawPath, wavPath, sampleRate); err != nil {
		return "", err
	}

	_ = os.Remove(rawPath)
	return wavPath, nil
}

// WritePCM appends captured audio to the open session archive. A no-op when
// no session is recording.
func (a *Archiver) WritePCM(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rawFile == nil {
		return nil
	}

	if _, err := a.rawFile.Write(data); err != nil {
		return fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return nil
}

func pcmToWav(rawPath, wavPath string, sampleRate int) error {
	pcmData, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read raw pcm data: %w", err)
	}

	out, err := os.OpenFile(wavPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open wav output: %w", err)
	}
	defer out.Close()

	header, err := wavHeader(len(pcmData), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return fmt.Errorf("build wav header: %w", err)
	}

	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcmData); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}

	return nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	if _, err := buf.WriteString("RIFF"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("WAVE"); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("fmt "); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(16)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(1)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(channels)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(byteRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(bitDepth)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("data"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
