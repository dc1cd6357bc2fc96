// Package download fetches the audio track of a remote video with yt-dlp.
package download
