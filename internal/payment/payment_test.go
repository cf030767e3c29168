package payment

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scanlens/internal/extract"
)

var _ = Describe("IntentURI", func() {
	It("round-trips through the UPI parser", func() {
		p := extract.UPIPayment{
			PayeeAddress: "shop@okaxis",
			PayeeName:    "Corner Shop",
			Amount:       "120.50",
			Currency:     "INR",
			Note:         "Order #42",
		}
		uri := IntentURI(p)
		Expect(uri).To(HavePrefix("upi://pay?"))
		Expect(extract.ParseUPI(uri)).To(Equal(p))
	})
})

var _ = Describe("WebhookDispatcher", func() {
	var (
		server     *ghttp.Server
		dispatcher *WebhookDispatcher
		payment    extract.UPIPayment
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		dispatcher = NewWebhookDispatcher(server.URL() + "/hooks/upi")
		payment = extract.ParseUPI("upi://pay?pa=a@b&pn=Shop&am=100")
	})

	AfterEach(func() {
		server.Close()
	})

	It("posts the intent as JSON", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/hooks/upi"),
			ghttp.VerifyJSONRepresenting(webhookBody{URI: IntentURI(payment), Payment: payment}),
			ghttp.RespondWith(http.StatusAccepted, nil),
		))

		Expect(dispatcher.Dispatch(context.Background(), payment)).To(Succeed())
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})

	It("reports non-2xx responses", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "down"))

		err := dispatcher.Dispatch(context.Background(), payment)
		Expect(err).To(MatchError(ContainSubstring("status 503")))
	})
})

var _ = Describe("LogDispatcher", func() {
	It("never fails", func() {
		Expect(LogDispatcher{}.Dispatch(context.Background(), extract.UPIPayment{})).To(Succeed())
	})
})
