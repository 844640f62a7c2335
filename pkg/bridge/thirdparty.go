package bridge

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/gorilla/websocket"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
)

// thirdParty adapts the error types of the client libraries bindkit ships
// with. They are consulted only when Options.ThirdParty is set.
var thirdParty = []Mapping{
	{
		Names: []string{"smithy.APIError", typeName[*smithy.GenericAPIError]()},
		Class: "OSError",
		Match: as[smithy.APIError](),
		Classify: func(err error) string {
			var ae smithy.APIError
			errors.As(err, &ae)
			switch ae.ErrorCode() {
			case "NotFound", "NoSuchKey", "NoSuchBucket":
				return "FileNotFoundError"
			case "AccessDenied", "Forbidden":
				return "PermissionError"
			}
			if ae.ErrorFault() == smithy.FaultServer {
				return "ConnectionError"
			}
			return ""
		},
		Message: func(err error) string {
			var ae smithy.APIError
			errors.As(err, &ae)
			return fmt.Sprintf("%s: %s", ae.ErrorCode(), ae.ErrorMessage())
		},
	},
	{
		Names: []string{typeName[*apierror.APIError]()},
		Class: RuntimeError,
		Match: as[*apierror.APIError](),
		Classify: func(err error) string {
			var ae *apierror.APIError
			errors.As(err, &ae)
			if st := ae.GRPCStatus(); st != nil {
				return classForCode(st.Code())
			}
			return classForHTTP(ae.HTTPCode())
		},
		Message: func(err error) string {
			var ae *apierror.APIError
			errors.As(err, &ae)
			msg := ae.Error()
			if st := ae.GRPCStatus(); st != nil {
				msg = st.Message()
			}
			if r := ae.Reason(); r != "" {
				return r + ": " + msg
			}
			return msg
		},
	},
	{
		Names: []string{typeName[*websocket.CloseError]()},
		Class: "ConnectionAbortedError",
		Match: as[*websocket.CloseError](),
		Classify: func(err error) string {
			var ce *websocket.CloseError
			errors.As(err, &ce)
			if ce.Code == websocket.CloseAbnormalClosure {
				return "ConnectionResetError"
			}
			return ""
		},
		Message: func(err error) string {
			var ce *websocket.CloseError
			errors.As(err, &ce)
			if ce.Text == "" {
				return fmt.Sprintf("connection closed (%d)", ce.Code)
			}
			return fmt.Sprintf("connection closed (%d): %s", ce.Code, ce.Text)
		},
	},
	{
		Names: []string{"*openai.Error", typeName[*openai.Error]()},
		Class: RuntimeError,
		Match: as[*openai.Error](),
		Classify: func(err error) string {
			var oe *openai.Error
			errors.As(err, &oe)
			return classForHTTP(oe.StatusCode)
		},
		// openai.Error.Error dereferences the request and response; the message
		// uses the decoded fields only.
		Message: func(err error) string {
			var oe *openai.Error
			errors.As(err, &oe)
			kind := oe.Type
			if oe.Code != "" {
				kind = oe.Code
			}
			if kind == "" {
				return fmt.Sprintf("%d: %s", oe.StatusCode, oe.Message)
			}
			return fmt.Sprintf("%s: %s", kind, oe.Message)
		},
	},
	{
		Names: []string{typeName[genai.APIError](), typeName[*genai.APIError]()},
		Class: RuntimeError,
		Match: func(err error) bool {
			_, ok := genaiError(err)
			return ok
		},
		Classify: func(err error) string {
			ge, _ := genaiError(err)
			return classForHTTP(ge.Code)
		},
		Message: func(err error) string {
			ge, _ := genaiError(err)
			if ge.Status == "" {
				return ge.Message
			}
			return ge.Status + ": " + ge.Message
		},
	},
}

// genaiError finds a genai.APIError by value or by pointer.
func genaiError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

func classForHTTP(code int) string {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return "ValueError"
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return "PermissionError"
	case code == http.StatusNotFound:
		return "LookupError"
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return "TimeoutError"
	case code == http.StatusTooManyRequests, code >= 500:
		return "ConnectionError"
	}
	return RuntimeError
}

func classForCode(c codes.Code) string {
	switch c {
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return "ValueError"
	case codes.NotFound:
		return "LookupError"
	case codes.PermissionDenied, codes.Unauthenticated:
		return "PermissionError"
	case codes.DeadlineExceeded:
		return "TimeoutError"
	case codes.Unavailable, codes.ResourceExhausted:
		return "ConnectionError"
	case codes.Unimplemented:
		return "NotImplementedError"
	case codes.Canceled:
		return "InterruptedError"
	}
	return RuntimeError
}
