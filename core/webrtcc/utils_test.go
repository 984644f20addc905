package webrtcc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctvwall/cctvwall/config"
	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/models"
)

const answerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=sendonly\r\n"

func TestCodecName(t *testing.T) {
	assert.Equal(t, "H264", codecName("video/H264", "video"))
	assert.Equal(t, "opus", codecName("audio/opus", "audio"))
	assert.Equal(t, "", codecName("audio/opus", "video"))
	assert.Equal(t, unknownString, codecName("video/", "video"))
}

func TestICEServersFallback(t *testing.T) {
	servers := iceServers(nil)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{config.DefaultSTUNServer}, servers[0].URLs)

	servers = iceServers([]models.ICEServer{
		{URLs: nil},
		{URLs: []string{"turn:turn.local:3478"}, Username: "u", Credential: "p"},
	})
	require.Len(t, servers, 1)
	assert.Equal(t, "u", servers[0].Username)
	assert.Equal(t, "p", servers[0].Credential)
}

func TestValidateAnswer(t *testing.T) {
	assert.NoError(t, validateAnswer([]byte(answerSDP)))

	err := validateAnswer([]byte("v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"))
	var negErr *playback.NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, "answer has no media", negErr.Reason)

	assert.Error(t, validateAnswer([]byte("<html>gateway</html>")))
}

func TestPostOfferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := postOffer(context.Background(), srv.Client(), srv.URL+"/cam/whep", "offer")
	var negErr *playback.NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, http.StatusInternalServerError, negErr.StatusCode)
}

func TestPostOfferReturnsAnswerAndLocation(t *testing.T) {
	var contentType, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		body = string(buf[:n])
		w.Header().Set("Location", "/cam/whep/session-1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(answerSDP))
	}))
	defer srv.Close()

	answer, location, err := postOffer(context.Background(), srv.Client(), srv.URL+"/cam/whep", "offer")
	require.NoError(t, err)

	assert.Equal(t, "application/sdp", contentType)
	assert.Equal(t, "offer", body)
	assert.Equal(t, answerSDP, answer)
	assert.Equal(t, srv.URL+"/cam/whep/session-1", location)
}
