package ffmpeg

import "fmt"

// RemuxArgs rewraps input into the container implied by output without
// re-encoding.
func RemuxArgs(input, output string) []string {
	return []string{"-i", input, "-c", "copy", output}
}

// ExtractAudioArgs pulls the audio track out of input. A zero bitrate lets
// the encoder pick.
func ExtractAudioArgs(input, output string, bitrateKbps int) []string {
	args := []string{"-i", input, "-vn"}
	if bitrateKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", bitrateKbps))
	}
	return append(args, output)
}

// EmbedThumbnailArgs attaches an image as cover art while copying streams.
func EmbedThumbnailArgs(input, thumbnail, output string) []string {
	return []string{
		"-i", input,
		"-i", thumbnail,
		"-map", "0", "-map", "1",
		"-c", "copy",
		"-disposition:v:1", "attached_pic",
		output,
	}
}

// MetadataArgs copies streams and stamps title and artist tags.
func MetadataArgs(input, output, title, artist string) []string {
	args := []string{"-i", input, "-c", "copy"}
	if title != "" {
		args = append(args, "-metadata", "title="+title)
	}
	if artist != "" {
		args = append(args, "-metadata", "artist="+artist)
	}
	return append(args, output)
}
