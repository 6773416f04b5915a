// package formatter writes playlists to files (CSV, Markdown, JSON, plain text) and reads plain text
// track lists back for transfers.
package formatter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

// Format names an export file format.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
	JSON     Format = "json"
	Text     Format = "txt"
)

// DefaultPlaylistName is used for track lists without a "# name" header.
const DefaultPlaylistName = "Imported playlist"

// maxArtistWords bounds how long the right side of "A - B" may be to be read as the artist.
const maxArtistWords = 5

// ParseFormat maps a user supplied name onto a [Format].
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case CSV, Markdown, JSON, Text:
		return f, nil
	case "md":
		return Markdown, nil
	case "text":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q (csv, markdown, json, txt)", shared.ErrInvalidArgument, name)
	}
}

// ExportToCSV converts a PlaylistExport to CSV format with columns: ID, Title, Artist, Album, Duration, ISRC
func ExportToCSV(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.ID,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the playlist as a Markdown document with a numbered track list.
func ExportToMarkdown(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Name)
	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", export.Playlist.Description)
	}
	if export.Playlist.URL != "" {
		fmt.Fprintf(&buf, "**Link**: %s\n\n", export.Playlist.URL)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", visibility(export.Playlist.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.Title, track.Artist, albumPart, formatDuration(track.Duration))
	}

	return buf.Bytes(), nil
}

// ExportToText writes a "# name" header followed by one "Title - Artist" line per track, the format
// [ParseTrackList] reads.
func ExportToText(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	if export.Playlist.Name != "" {
		fmt.Fprintf(&buf, "# %s\n", export.Playlist.Name)
	}
	for _, track := range export.Tracks {
		if track.Artist == "" {
			fmt.Fprintln(&buf, track.Title)
			continue
		}
		fmt.Fprintf(&buf, "%s - %s\n", track.Title, track.Artist)
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the playlist and its tracks as indented JSON.
func ExportToJSON(export *models.PlaylistExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playlist: %w", err)
	}
	return data, nil
}

// ToMetadataJSON generates a JSON representation of playlist metadata (without tracks)
func ToMetadataJSON(playlist models.Playlist) ([]byte, error) {
	return json.MarshalIndent(playlist, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a playlist to CSV format with accompanying metadata JSON file.
//
// Defaults to playlist ID as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(export *models.PlaylistExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Playlist.ID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export.Playlist)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteMarkdownExport writes {dir}/README.md. The directory defaults to the playlist ID.
func WriteMarkdownExport(export *models.PlaylistExport, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = export.Playlist.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := ExportToMarkdown(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteTextExport exports a playlist to plain text format.
//
// Defaults to {playlist.ID}_tracks.txt as the filename.
func WriteTextExport(export *models.PlaylistExport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.txt", export.Playlist.ID)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteExport writes export into dir in the given format and returns the created files.
func WriteExport(export *models.PlaylistExport, format Format, dir string) ([]string, error) {
	base := export.Playlist.ID
	if base == "" {
		base = "playlist"
	}

	switch format {
	case CSV:
		res, err := WriteCSVExport(export, filepath.Join(dir, base))
		if err != nil {
			return nil, err
		}
		return []string{res.TracksFile, res.MetadataFile}, nil
	case Markdown:
		path, err := WriteMarkdownExport(export, filepath.Join(dir, base))
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case Text:
		path, err := WriteTextExport(export, filepath.Join(dir, base+"_tracks.txt"))
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		data, err := ExportToJSON(export)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, base+".json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write JSON file: %w", err)
		}
		return []string{path}, nil
	}
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ParseTrackList reads a plain text track list, one track per line.
//
// A line "A - B" is read as title A by artist B when B has at most five words, otherwise as title
// B by artist A. Lines without a separator are titles with no artist. Blank lines are skipped and
// a leading "# name" line names the playlist.
func ParseTrackList(r io.Reader) (string, []models.Track, error) {
	name := DefaultPlaylistName
	var tracks []models.Track

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first && strings.HasPrefix(line, "# ") {
			name = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			first = false
			continue
		}
		first = false
		tracks = append(tracks, parseTrackLine(line))
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("failed to read track list: %w", err)
	}
	return name, tracks, nil
}

func parseTrackLine(line string) models.Track {
	left, right, ok := strings.Cut(line, " - ")
	if !ok {
		return models.Track{Title: line}
	}
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if len(strings.Fields(right)) <= maxArtistWords {
		return models.Track{Title: left, Artist: right}
	}
	return models.Track{Title: right, Artist: left}
}

// ReadTrackListFile opens path and parses it with [ParseTrackList].
func ReadTrackListFile(path string) (string, []models.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open track list: %w", err)
	}
	defer f.Close()
	return ParseTrackList(f)
}

func visibility(public bool) string {
	if public {
		return "Public"
	}
	return "Private"
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
