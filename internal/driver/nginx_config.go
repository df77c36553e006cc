package driver

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/renameio/v2/maybe"
)

var nginxConfTmpl = template.Must(template.New("nginx.conf").Parse(`# generated by lokcaldev; rewritten when the PHP upstream or phpMyAdmin changes
user {{.User}} {{.Group}};
worker_processes auto;
pid "{{.PIDFile}}";
error_log "{{.Logs}}/nginx-error.log" warn;

events {
    worker_connections 256;
}

http {
    include       "{{.ConfDir}}/mime.types";
    default_type  application/octet-stream;

    log_format  main  '$remote_addr - $remote_user [$time_local] "$request" '
                      '$status $body_bytes_sent "$http_referer" '
                      '"$http_user_agent"';

    access_log  "{{.Logs}}/nginx-access.log"  main;

    sendfile        on;
    tcp_nopush      on;
    keepalive_timeout  65;
    gzip  on;

    include "{{.ConfDir}}/sites-enabled/*.conf";

    server {
        listen {{.Port}} default_server;
        server_name localhost;
        root "{{.WWW}}";
        index index.php index.html index.htm;

        location / {
            try_files $uri $uri/ /index.php?$query_string;
        }

        location ~ \.php$ {
            try_files $uri =404;
            fastcgi_pass 127.0.0.1:{{.PHPPort}};
            fastcgi_index index.php;
            include "{{.ConfDir}}/fastcgi_params";
        }

        location ~ /\.ht {
            deny all;
        }
{{- if .PhpMyAdminRoot}}

        location ^~ /phpmyadmin {
            root "{{.PhpMyAdminRoot}}";
            index index.php;

            location ~ \.php$ {
                root "{{.PhpMyAdminRoot}}";
                fastcgi_pass 127.0.0.1:{{.PHPPort}};
                fastcgi_index index.php;
                include "{{.ConfDir}}/fastcgi_params";
            }
        }
{{- end}}
    }
}
`))

type nginxConfData struct {
	User, Group    string
	PIDFile        string
	Logs           string
	ConfDir        string
	WWW            string
	Port           int
	PHPPort        int
	PhpMyAdminRoot string
}

const fastcgiParams = `fastcgi_param  QUERY_STRING       $query_string;
fastcgi_param  REQUEST_METHOD     $request_method;
fastcgi_param  CONTENT_TYPE       $content_type;
fastcgi_param  CONTENT_LENGTH     $content_length;
fastcgi_param  SCRIPT_NAME        $fastcgi_script_name;
fastcgi_param  REQUEST_URI        $request_uri;
fastcgi_param  DOCUMENT_URI       $document_uri;
fastcgi_param  DOCUMENT_ROOT      $document_root;
fastcgi_param  SERVER_PROTOCOL    $server_protocol;
fastcgi_param  GATEWAY_INTERFACE  CGI/1.1;
fastcgi_param  SERVER_SOFTWARE    nginx/$nginx_version;
fastcgi_param  REMOTE_ADDR        $remote_addr;
fastcgi_param  REMOTE_PORT        $remote_port;
fastcgi_param  SERVER_ADDR        $server_addr;
fastcgi_param  SERVER_PORT        $server_port;
fastcgi_param  SERVER_NAME        $server_name;
fastcgi_param  SCRIPT_FILENAME    $document_root$fastcgi_script_name;
fastcgi_param  REDIRECT_STATUS    200;
`

const mimeTypes = `types {
    text/html                 html htm shtml;
    text/css                  css;
    text/plain                txt;
    text/xml                  xml;
    application/javascript    js mjs;
    application/json          json;
    application/pdf           pdf;
    application/zip           zip;
    application/wasm          wasm;
    image/png                 png;
    image/jpeg                jpg jpeg;
    image/gif                 gif;
    image/webp                webp;
    image/svg+xml             svg svgz;
    image/x-icon              ico;
    font/woff                 woff;
    font/woff2                woff2;
}
`

const defaultIndexPHP = `<?php
echo "<h1>lokcaldev</h1>";
phpinfo();
`

// needsRewrite reports whether the existing config is missing any marker the
// current environment requires.
func needsRewrite(existing string, pmaInstalled bool, phpPort, listenPort int) bool {
	hasPMA := strings.Contains(existing, "^~ /phpmyadmin")
	return !strings.Contains(existing, "fastcgi_pass") ||
		!strings.Contains(existing, "\nuser ") ||
		pmaInstalled != hasPMA ||
		!strings.Contains(existing, fmt.Sprintf("fastcgi_pass 127.0.0.1:%d", phpPort)) ||
		!strings.Contains(existing, fmt.Sprintf("listen %d ", listenPort))
}

func renderNginxConf(d nginxConfData) ([]byte, error) {
	var buf bytes.Buffer
	if err := nginxConfTmpl.Execute(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeIfMissing creates path with content unless it already exists.
func writeIfMissing(path, content string) error {
	if exists(path) {
		return nil
	}
	return maybe.WriteFile(path, []byte(content), 0o644)
}

func currentUserGroup() (string, string) {
	name := os.Getenv("USER")
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	if u, err := user.Current(); err == nil {
		if name == "" {
			name = u.Username
		}
		if g, err := user.LookupGroupId(u.Gid); err == nil {
			return name, g.Name
		}
	}
	if name == "" {
		name = "nobody"
	}
	// #nosec G204
	if out, err := exec.Command("id", "-gn").Output(); err == nil {
		if g := strings.TrimSpace(string(out)); g != "" {
			return name, g
		}
	}
	return name, "staff"
}

func toSlash(p string) string { return filepath.ToSlash(p) }
