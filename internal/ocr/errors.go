package ocr

import (
	"errors"
	"fmt"
)

// Common token detection errors
var (
	// ErrImageTooLarge is returned when the image exceeds the maximum file size limit.
	// Google Cloud Vision API has a 20MB limit for synchronous requests.
	ErrImageTooLarge = errors.New("image file size exceeds the maximum limit (20MB)")

	// ErrInvalidImage is returned when the provided data is not a supported image format.
	ErrInvalidImage = errors.New("invalid or unsupported image data")

	// ErrOCRFailed is returned when the OCR engine fails to process the image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrEmptyDocument is returned when the engine detected no tokens at all.
	ErrEmptyDocument = errors.New("document contains no readable text")

	// ErrInvalidPayload is returned when a token file does not match the token schema.
	ErrInvalidPayload = errors.New("invalid token payload")

	// ErrUnknownProvider is returned for an OCR provider name that has no backend.
	ErrUnknownProvider = errors.New("unknown OCR provider")

	// ErrTesseractNotEnabled is returned when the tesseract backend was not compiled in.
	// Rebuild with -tags tesseract; this requires the Tesseract libraries:
	//
	//	apt-get install libtesseract-dev tesseract-ocr-spa
	ErrTesseractNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract")

	// ErrContextCanceled is returned when the context is canceled during processing.
	ErrContextCanceled = errors.New("OCR processing was canceled")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "DetectTokens", "NewVisionTokenSource").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}
