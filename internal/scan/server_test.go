package scan

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scanlens/internal/scanning"
)

type testFile struct {
	name  string
	image scanning.Image
}

func multipartBody(files ...testFile) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, f.name))
		if f.image.ContentType != "" {
			header.Set("Content-Type", f.image.ContentType)
		}
		part, err := writer.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(f.image.Data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		archive     *mockArchive
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		archive = newMockArchive()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		pipeline := NewPipeline(Deps{
			OCR:         &mockOCR{text: receiptText},
			Store:       db,
			Dispatcher:  &mockDispatcher{},
			IDGenerator: &mockIDGenerator{},
		})
		service = NewService(pipeline, db, archive, NewHistory(10), 2)
		server = NewServerWithMux(service, auth, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	upload := func(query string, files ...testFile) *http.Response {
		body, contentType := multipartBody(files...)
		resp, err := http.Post(ghttpServer.URL()+"/api/scans"+query, contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	Describe("health", func() {
		It("returns OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/scans", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects wrong credentials", func() {
			req, _ := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/scans", nil)
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts the configured credentials", func() {
			req, _ := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/scans", nil)
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/scans", func() {
		When("one file holds a code", func() {
			It("returns the result", func() {
				resp := upload("", testFile{name: "qr.png", image: qrUpload("https://example.com")})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var result ScanResult
				decode(resp, &result)
				Expect(result.Kind).To(Equal(KindQR))
				Expect(result.Confidence).To(Equal(0.8))
				Expect(result.RecordID).To(Equal("1"))
			})
		})

		When("the file type is only known from its extension", func() {
			It("still recognizes it", func() {
				img := qrUpload("hello")
				img.ContentType = ""
				resp := upload("", testFile{name: "qr.PNG", image: img})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})
		})

		When("no code is found in code mode", func() {
			It("returns 422 with the failure kind", func() {
				resp := upload("?mode=code", testFile{name: "blank.png", image: blankUpload()})
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var body map[string]string
				decode(resp, &body)
				Expect(body["kind"]).To(Equal("no_code_found"))
			})
		})

		When("no code is found in receipt mode", func() {
			It("returns the receipt", func() {
				resp := upload("?mode=receipt", testFile{name: "receipt.png", image: blankUpload()})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var result ScanResult
				decode(resp, &result)
				Expect(result.Kind).To(Equal(KindReceipt))
				Expect(result.Confidence).To(Equal(0.7))
			})
		})

		When("the upload is not an image", func() {
			It("returns 400", func() {
				resp := upload("", testFile{name: "notes.txt", image: scanning.Image{Data: []byte("hello"), ContentType: "text/plain"}})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the mode is unknown", func() {
			It("returns 400", func() {
				resp := upload("?mode=xray", testFile{name: "qr.png", image: qrUpload("x")})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("no file is sent", func() {
			It("returns 400", func() {
				resp := upload("")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("No file"))
			})
		})

		When("several files are sent", func() {
			It("returns one outcome per file", func() {
				resp := upload("",
					testFile{name: "a.png", image: qrUpload("a")},
					testFile{name: "b.png", image: blankUpload()},
				)
				Expect(resp.StatusCode).To(Equal(http.StatusMultiStatus))

				var outcomes []struct {
					Filename string      `json:"filename"`
					Result   *ScanResult `json:"result"`
					Error    string      `json:"error"`
					Kind     FailureKind `json:"kind"`
				}
				decode(resp, &outcomes)
				Expect(outcomes).To(HaveLen(2))
				Expect(outcomes[0].Filename).To(Equal("a.png"))
				Expect(outcomes[0].Result.RawContent).To(Equal("a"))
				Expect(outcomes[1].Result).To(BeNil())
				Expect(outcomes[1].Kind).To(Equal(FailureNoCodeFound))
			})
		})
	})

	Describe("stored scans", func() {
		JustBeforeEach(func() {
			resp := upload("", testFile{name: "pay.png", image: qrUpload("upi://pay?pa=a@b&am=5")})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("lists scans by category", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans?category=upi")
			Expect(err).NotTo(HaveOccurred())
			var records []map[string]any
			decode(resp, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0]["kind"]).To(Equal("upi"))
		})

		It("gets a scan", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans/1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record Record
			decode(resp, &record)
			Expect(record.Category).To(Equal("upi"))
		})

		It("returns 404 for unknown scans", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans/99")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves the archived image", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans/1/image")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("deletes a scan", func() {
			req, _ := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/scans/1", nil)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			req, _ = http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/scans/1", nil)
			resp, err = http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns the history", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history")
			Expect(err).NotTo(HaveOccurred())
			var results []ScanResult
			decode(resp, &results)
			Expect(results).To(HaveLen(1))
			Expect(results[0].Kind).To(Equal(KindUPI))
		})

		It("exports the history as CSV", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history/export.csv")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/csv"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(HavePrefix("timestamp,kind,content,confidence,payload\n"))
			Expect(string(body)).To(ContainSubstring("upi://pay?pa=a@b&am=5"))
		})
	})

	Describe("GET /ws", func() {
		var (
			wsServer *httptest.Server
			conn     *websocket.Conn
		)

		JustBeforeEach(func() {
			wsServer = httptest.NewServer(server)
			var err error
			conn, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(wsServer.URL, "http")+"/ws", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Second))).To(Succeed())
		})

		AfterEach(func() {
			conn.Close()
			wsServer.Close()
		})

		send := func(messageType string, data any) {
			payload, err := json.Marshal(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.WriteJSON(wsMessage{Type: messageType, Data: payload})).To(Succeed())
		}

		read := func() wsMessage {
			var msg wsMessage
			Expect(conn.ReadJSON(&msg)).To(Succeed())
			return msg
		}

		It("streams progress and then the receipt result", func() {
			send("scan", wsScanRequest{
				Mode:        "receipt",
				Filename:    "receipt.png",
				ContentType: "image/png",
				Image:       base64.StdEncoding.EncodeToString(blankUpload().Data),
			})

			var progress []float64
			for {
				msg := read()
				if msg.Type == "progress" {
					var p wsProgress
					Expect(json.Unmarshal(msg.Data, &p)).To(Succeed())
					progress = append(progress, p.Progress)
					continue
				}
				Expect(msg.Type).To(Equal("result"))
				var result ScanResult
				Expect(json.Unmarshal(msg.Data, &result)).To(Succeed())
				Expect(result.Kind).To(Equal(KindReceipt))
				break
			}
			Expect(progress).To(Equal([]float64{0.5, 1}))
		})

		It("reports recognition failures", func() {
			send("scan", wsScanRequest{Image: base64.StdEncoding.EncodeToString(blankUpload().Data), ContentType: "image/png"})

			msg := read()
			Expect(msg.Type).To(Equal("error"))
			var e wsError
			Expect(json.Unmarshal(msg.Data, &e)).To(Succeed())
			Expect(e.Kind).To(Equal(FailureNoCodeFound))
		})

		It("rejects images that are not base64", func() {
			send("scan", wsScanRequest{Image: "%%%"})
			Expect(read().Type).To(Equal("error"))
		})

		It("returns the history", func() {
			send("get_history", nil)
			msg := read()
			Expect(msg.Type).To(Equal("history"))
			Expect(msg.Data).To(MatchJSON(`[]`))
		})

		It("rejects unknown messages", func() {
			send("dance", nil)
			Expect(read().Type).To(Equal("error"))
		})
	})
})
