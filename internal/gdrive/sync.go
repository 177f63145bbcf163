package gdrive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Syncer mirrors daily transcript exports and session audio archives into a
// Drive folder. Uploads for the same date update in place.
type Syncer struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// SyncTranscript uploads a daily transcript markdown file as a Google Doc.
func (s *Syncer) SyncTranscript(localPath, date string) error {
	name := fmt.Sprintf("realtime-console-%s", date)
	return s.upload(localPath, "transcript:"+date, name, "application/vnd.google-apps.document")
}

// SyncAudio uploads a finished session WAV archive.
func (s *Syncer) SyncAudio(localPath, sessionID string) error {
	name := fmt.Sprintf("realtime-console-%s%s", sessionID, filepath.Ext(localPath))
	return s.upload(localPath, "audio:"+sessionID, name, "")
}

func (s *Syncer) upload(localPath, key, name, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[key]; ok {
		if _, err := s.service.Files.Update(fileID, &drive.File{}).Media(f).Do(); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	meta := &drive.File{
		Name:    name,
		Parents: []string{s.folderID},
	}
	if mimeType != "" {
		meta.MimeType = mimeType
	}
	doc, err := s.service.Files.Create(meta).Media(f).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[key] = doc.Id
	return nil
}
