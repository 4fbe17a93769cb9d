package certificate

import "fmt"

const unknownVerificationMsg = "unknown certificate verification error"

// verificationMessages maps OpenSSL X509_V_ERR_* short codes to their descriptions.
var verificationMessages = map[string]string{
	"UNSPECIFIED":                          "unspecified certificate verification error",
	"UNABLE_TO_GET_ISSUER_CERT":            "unable to get issuer certificate",
	"UNABLE_TO_GET_CRL":                    "unable to get certificate CRL",
	"UNABLE_TO_DECRYPT_CERT_SIGNATURE":     "unable to decrypt certificate's signature",
	"UNABLE_TO_DECRYPT_CRL_SIGNATURE":      "unable to decrypt CRL's signature",
	"UNABLE_TO_DECODE_ISSUER_PUBLIC_KEY":   "unable to decode issuer public key",
	"CERT_SIGNATURE_FAILURE":               "certificate signature failure",
	"CRL_SIGNATURE_FAILURE":                "CRL signature failure",
	"CERT_NOT_YET_VALID":                   "certificate is not yet valid",
	"CERT_HAS_EXPIRED":                     "certificate has expired",
	"CRL_NOT_YET_VALID":                    "CRL is not yet valid",
	"CRL_HAS_EXPIRED":                      "CRL has expired",
	"ERROR_IN_CERT_NOT_BEFORE_FIELD":       "format error in certificate's notBefore field",
	"ERROR_IN_CERT_NOT_AFTER_FIELD":        "format error in certificate's notAfter field",
	"ERROR_IN_CRL_LAST_UPDATE_FIELD":       "format error in CRL's lastUpdate field",
	"ERROR_IN_CRL_NEXT_UPDATE_FIELD":       "format error in CRL's nextUpdate field",
	"OUT_OF_MEM":                           "out of memory",
	"DEPTH_ZERO_SELF_SIGNED_CERT":          "self signed certificate",
	"SELF_SIGNED_CERT_IN_CHAIN":            "self signed certificate in certificate chain",
	"UNABLE_TO_GET_ISSUER_CERT_LOCALLY":    "unable to get local issuer certificate",
	"UNABLE_TO_VERIFY_LEAF_SIGNATURE":      "unable to verify the first certificate",
	"CERT_CHAIN_TOO_LONG":                  "certificate chain too long",
	"CERT_REVOKED":                         "certificate revoked",
	"INVALID_CA":                           "invalid CA certificate",
	"PATH_LENGTH_EXCEEDED":                 "path length constraint exceeded",
	"INVALID_PURPOSE":                      "unsupported certificate purpose",
	"CERT_UNTRUSTED":                       "certificate not trusted",
	"CERT_REJECTED":                        "certificate rejected",
	"SUBJECT_ISSUER_MISMATCH":              "subject issuer mismatch",
	"AKID_SKID_MISMATCH":                   "authority and subject key identifier mismatch",
	"AKID_ISSUER_SERIAL_MISMATCH":          "authority and issuer serial number mismatch",
	"KEYUSAGE_NO_CERTSIGN":                 "key usage does not include certificate signing",
	"UNABLE_TO_GET_CRL_ISSUER":             "unable to get CRL issuer certificate",
	"UNHANDLED_CRITICAL_EXTENSION":         "unhandled critical extension",
	"KEYUSAGE_NO_CRL_SIGN":                 "key usage does not include CRL signing",
	"UNHANDLED_CRITICAL_CRL_EXTENSION":     "unhandled critical CRL extension",
	"INVALID_NON_CA":                       "invalid non-CA certificate (has CA markings)",
	"PROXY_PATH_LENGTH_EXCEEDED":           "proxy path length constraint exceeded",
	"KEYUSAGE_NO_DIGITAL_SIGNATURE":        "key usage does not include digital signature",
	"PROXY_CERTIFICATES_NOT_ALLOWED":       "proxy certificates not allowed, please set the appropriate flag",
	"INVALID_EXTENSION":                    "invalid or inconsistent certificate extension",
	"INVALID_POLICY_EXTENSION":             "invalid or inconsistent certificate policy extension",
	"NO_EXPLICIT_POLICY":                   "no explicit policy",
	"DIFFERENT_CRL_SCOPE":                  "Different CRL scope",
	"UNSUPPORTED_EXTENSION_FEATURE":        "Unsupported extension feature",
	"UNNESTED_RESOURCE":                    "RFC 3779 resource not subset of parent's resources",
	"PERMITTED_VIOLATION":                  "permitted subtree violation",
	"EXCLUDED_VIOLATION":                   "excluded subtree violation",
	"SUBTREE_MINMAX":                       "name constraints minimum and maximum not supported",
	"APPLICATION_VERIFICATION":             "application verification failure",
	"UNSUPPORTED_CONSTRAINT_TYPE":          "unsupported name constraint type",
	"UNSUPPORTED_CONSTRAINT_SYNTAX":        "unsupported or invalid name constraint syntax",
	"UNSUPPORTED_NAME_SYNTAX":              "unsupported or invalid name syntax",
	"CRL_PATH_VALIDATION_ERROR":            "CRL path validation error",
	"PATH_LOOP":                            "Path Loop",
	"SUITE_B_INVALID_VERSION":              "Suite B: certificate version invalid",
	"SUITE_B_INVALID_ALGORITHM":            "Suite B: invalid public key algorithm",
	"SUITE_B_INVALID_CURVE":                "Suite B: invalid ECC curve",
	"SUITE_B_INVALID_SIGNATURE_ALGORITHM":  "Suite B: invalid signature algorithm",
	"SUITE_B_LOS_NOT_ALLOWED":              "Suite B: curve not allowed for this LOS",
	"SUITE_B_CANNOT_SIGN_P_384_WITH_P_256": "Suite B: cannot sign P-384 with P-256",
	"HOSTNAME_MISMATCH":                    "Hostname mismatch",
	"EMAIL_MISMATCH":                       "Email address mismatch",
	"IP_ADDRESS_MISMATCH":                  "IP address mismatch",
	"DANE_NO_MATCH":                        "No matching DANE TLSA records",
	"EE_KEY_TOO_SMALL":                     "EE certificate key too weak",
	"CA_KEY_TOO_SMALL":                     "CA certificate key too weak",
	"CA_MD_TOO_WEAK":                       "CA signature digest algorithm too weak",
	"INVALID_CALL":                         "Invalid certificate verification context",
	"STORE_LOOKUP":                         "Issuer certificate lookup error",
	"NO_VALID_SCTS":                        "Certificate Transparency required, but no valid SCTs found",
	"PROXY_SUBJECT_NAME_VIOLATION":         "proxy subject name violation",
	"OCSP_VERIFY_NEEDED":                   "OCSP verification needed",
	"OCSP_VERIFY_FAILED":                   "OCSP verification failed",
	"OCSP_CERT_UNKNOWN":                    "OCSP unknown cert",
}

var connectionMessages = map[string]string{
	"EPROTO":    "Error trying to make TLS connection.  It could be incorrect or old cypher being used.",
	"ENOTFOUND": "Unable to find requested domain",
}

// Translate returns the operator-facing message for an error type and code.
// Unknown codes never fail: verification codes fall back to a generic phrase and
// connection codes echo the raw code.
func Translate(errorType ErrorType, errorCode string) string {
	switch errorType {
	case Unauthorized:
		if msg, ok := verificationMessages[errorCode]; ok {
			return msg
		}
		return unknownVerificationMsg
	case Rejected:
		if msg, ok := connectionMessages[errorCode]; ok {
			return msg
		}
		return fmt.Sprintf("Unknown error - %s", errorCode)
	default:
		return ""
	}
}
