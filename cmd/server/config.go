package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/email/mailgun"
	"github.com/willemschots/volunteerhub/internal/email/postmark"
	"github.com/willemschots/volunteerhub/internal/krypto"
	"github.com/willemschots/volunteerhub/internal/web"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	cookieKeys      []krypto.Key
	secureCookie    bool
	sessionMaxAge   time.Duration
	server          web.ServerConfig
}

// dbConfig is the configuration for the database.
type dbConfig struct {
	file    string
	migrate bool
}

// emailConfig is the configuration for sending emails.
type emailConfig struct {
	transport    string
	from         email.Address
	rateInterval time.Duration
	rateBurst    int
	postmark     postmark.Settings
	mailgun      mailgun.Settings
}

// config is the configuration for the server command.
type config struct {
	http          httpConfig
	db            dbConfig
	email         emailConfig
	access        access.Config
	workerTimeout time.Duration
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			secureCookie:    true,
			sessionMaxAge:   time.Hour * 12,
			server: web.ServerConfig{
				ThrottleInterval: time.Second * 2,
				ThrottleBurst:    20,
				BulkWriteTimeout: time.Minute * 30,
			},
		},
		db: dbConfig{
			file:    "volunteerhub.db",
			migrate: true,
		},
		email: emailConfig{
			transport:    "log",
			rateInterval: time.Millisecond * 100,
			rateBurst:    10,
			postmark: postmark.Settings{
				APIURL:        must(url.Parse("https://api.postmarkapp.com")),
				MessageStream: "outbound",
			},
			mailgun: mailgun.Settings{
				APIHost: "api.mailgun.net",
			},
		},
		access:        access.DefaultConfig(must(url.Parse("http://localhost:8888"))),
		workerTimeout: time.Second * 10,
	}
}

// requiredKeys must be present in the environment.
var requiredKeys = []string{
	"HTTP_COOKIE_KEYS",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		return confKeys(v, &c.http.cookieKeys)
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.secureCookie)
	},
	"HTTP_SESSION_MAX_AGE": func(v string, c *config) error {
		return confDuration(v, &c.http.sessionMaxAge, time.Minute, math.MaxInt64)
	},
	"HTTP_THROTTLE_INTERVAL": func(v string, c *config) error {
		return confDuration(v, &c.http.server.ThrottleInterval, 0, math.MaxInt64)
	},
	"HTTP_THROTTLE_BURST": func(v string, c *config) error {
		return confInt(v, &c.http.server.ThrottleBurst, 1, math.MaxInt32)
	},
	"HTTP_BULK_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.server.BulkWriteTimeout, 0, math.MaxInt64)
	},
	"BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.access.BaseURL)
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty filename")
		}
		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = addr
		return nil
	},
	"EMAIL_TRANSPORT": func(v string, c *config) error {
		switch v {
		case "log", "postmark", "mailgun":
			c.email.transport = v
			return nil
		default:
			return fmt.Errorf("unknown transport %q, expected log, postmark or mailgun", v)
		}
	},
	"EMAIL_RATE_INTERVAL": func(v string, c *config) error {
		return confDuration(v, &c.email.rateInterval, 0, math.MaxInt64)
	},
	"EMAIL_RATE_BURST": func(v string, c *config) error {
		return confInt(v, &c.email.rateBurst, 1, math.MaxInt32)
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmark.MessageStream = v
		return nil
	},
	"MAILGUN_API_HOST": func(v string, c *config) error {
		c.email.mailgun.APIHost = v
		return nil
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		c.email.mailgun.Domain = v
		return nil
	},
	"MAILGUN_API_KEY": func(v string, c *config) error {
		c.email.mailgun.APIKey = krypto.NewSecret(v)
		return nil
	},
	"TOKEN_PORTAL_TTL": func(v string, c *config) error {
		return confDuration(v, &c.access.PortalTTL, time.Minute, math.MaxInt64)
	},
	"TOKEN_PASSWORD_TTL": func(v string, c *config) error {
		return confDuration(v, &c.access.PasswordTTL, time.Minute, math.MaxInt64)
	},
	"TOKEN_SIGNUP_TTL": func(v string, c *config) error {
		return confDuration(v, &c.access.SignupTTL, time.Minute, math.MaxInt64)
	},
	"TOKEN_POLL_TTL": func(v string, c *config) error {
		return confDuration(v, &c.access.PollTTL, time.Minute, math.MaxInt64)
	},
	"WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.workerTimeout, 0, math.MaxInt64)
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
//
// All problems are reported at once.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredKeys {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	switch c.email.transport {
	case "postmark":
		if c.email.postmark.ServerToken.IsZero() {
			errs = append(errs, errors.New("env variable POSTMARK_SERVER_TOKEN is required for the postmark transport"))
		}
	case "mailgun":
		if c.email.mailgun.Domain == "" || c.email.mailgun.APIKey.IsZero() {
			errs = append(errs, errors.New("env variables MAILGUN_DOMAIN and MAILGUN_API_KEY are required for the mailgun transport"))
		}
	}

	return c, errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

// confInt attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confInt(v string, tgt *int, min, max int) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}

	if i < min || i > max {
		return fmt.Errorf("%d not in range [%d, %d] (inclusive)", i, min, max)
	}

	*tgt = i

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

// confURL expects an absolute URL.
func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute url", v)
	}

	*tgt = u

	return nil
}

func confKeys(v string, tgt *[]krypto.Key) error {
	keys, err := krypto.ParseKeys(v)
	if err != nil {
		return err
	}

	*tgt = keys

	return nil
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
