package scanning

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubGenerator struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (s *stubGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	s.parts = parts
	return s.resp, s.err
}

func candidate(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

var _ = Describe("Gemini", func() {
	var (
		generator *stubGenerator
		describer *Gemini
		text      string
		err       error
	)

	BeforeEach(func() {
		generator = &stubGenerator{}
		describer = &Gemini{model: generator}
	})

	JustBeforeEach(func() {
		text, err = describer.Describe(context.Background(), []byte("png-bytes"), "image/png", ReceiptPrompt)
	})

	When("the model answers in several parts", func() {
		BeforeEach(func() {
			generator.resp = candidate(genai.Text(`[{"seller_name": `), genai.Text(`"7-11"}]`+"\n"))
		})

		It("joins and trims the text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`[{"seller_name": "7-11"}]`))
		})

		It("sends the image before the prompt", func() {
			Expect(generator.parts).To(HaveLen(2))
			Expect(generator.parts[0]).To(Equal(genai.ImageData("png", []byte("png-bytes"))))
			Expect(generator.parts[1]).To(Equal(genai.Text(ReceiptPrompt)))
		})
	})

	When("the call fails", func() {
		BeforeEach(func() {
			generator.err = errors.New("quota exceeded")
		})

		It("reports the backend as unavailable", func() {
			Expect(err).To(MatchError(ErrBackendUnavailable))
		})
	})

	When("the deadline passes", func() {
		BeforeEach(func() {
			generator.err = context.DeadlineExceeded
		})

		It("reports a timeout", func() {
			Expect(err).To(MatchError(ErrTimeout))
		})
	})

	When("there are no candidates", func() {
		BeforeEach(func() {
			generator.resp = &genai.GenerateContentResponse{}
		})

		It("reports an empty result", func() {
			Expect(err).To(MatchError(ErrEmptyResult))
		})
	})

	When("the prompt is blocked", func() {
		BeforeEach(func() {
			generator.resp = &genai.GenerateContentResponse{
				PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
			}
		})

		It("reports an empty result", func() {
			Expect(err).To(MatchError(ErrEmptyResult))
		})
	})

	When("the candidate has no text", func() {
		BeforeEach(func() {
			generator.resp = candidate(genai.Text("  "))
		})

		It("reports an empty result", func() {
			Expect(err).To(MatchError(ErrEmptyResult))
			Expect(text).To(BeEmpty())
		})
	})

	It("closes without a client", func() {
		Expect(describer.Close()).To(Succeed())
	})
})
