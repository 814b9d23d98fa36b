package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// documentSchema 约束配置文件的结构，语义校验由 Validator 完成。
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "suite": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "version": {"type": ["string", "number"]},
        "environment": {"type": "string"}
      }
    },
    "targets": {"type": "object"},
    "scenarios": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "name": {"type": "string"},
          "type": {"enum": ["load", "stress", "cache", "database", "api", "memory", "scalability"]},
          "skip": {"type": "boolean"},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "target": {"enum": ["http", "memory", "redis", "database", "simulated"]},
          "users": {"type": "integer", "minimum": 0},
          "ramp_steps": {"type": "integer", "minimum": 0},
          "ramp_down_steps": {"type": "integer", "minimum": 0},
          "rate_limit": {"type": "number", "minimum": 0},
          "seed": {"type": "integer", "minimum": 0},
          "step_duration": {"$ref": "#/definitions/duration"},
          "sustain_duration": {"$ref": "#/definitions/duration"},
          "sample_interval": {"$ref": "#/definitions/duration"},
          "ramp_down_step_duration": {"$ref": "#/definitions/duration"},
          "think_time": {"$ref": "#/definitions/duration"},
          "think_jitter": {"$ref": "#/definitions/duration"},
          "operation_timeout": {"$ref": "#/definitions/duration"},
          "timeout": {"$ref": "#/definitions/duration"},
          "breaking_point": {
            "type": "object",
            "properties": {
              "response_time_metric": {"enum": ["avg", "p95", "p99"]},
              "max_error_rate": {"type": "number", "minimum": 0, "maximum": 100}
            }
          },
          "cache": {
            "type": "object",
            "properties": {
              "distribution": {"enum": ["uniform", "zipf", "hotspot"]},
              "read_ratio": {"type": "number", "minimum": 0, "maximum": 1}
            }
          },
          "api": {
            "type": "object",
            "properties": {
              "endpoints": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["path"],
                  "properties": {
                    "path": {"type": "string"},
                    "weight": {"type": "number", "minimum": 0}
                  }
                }
              }
            }
          },
          "scalability": {
            "type": "object",
            "properties": {
              "levels": {"type": "array", "items": {"type": "integer", "minimum": 1}}
            }
          }
        }
      }
    },
    "scheduling": {
      "type": "object",
      "properties": {
        "mode": {"enum": ["parallel", "sequential"]},
        "max_parallel": {"type": "integer", "minimum": 0}
      }
    },
    "regression": {
      "type": "object",
      "properties": {
        "update_policy": {"enum": ["never", "on_success", "no_regression"]},
        "degradation_threshold": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "alerts": {
      "type": "object",
      "properties": {
        "rules": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["metric", "threshold"],
            "properties": {
              "operator": {"enum": [">", ">=", "<", "<="]},
              "severity": {"enum": ["info", "warning", "critical"]}
            }
          }
        }
      }
    }
  },
  "definitions": {
    "duration": {
      "type": "string",
      "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ValidateDocument 用 JSON Schema 检查原始 YAML 文档的结构。
func ValidateDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("配置结构校验出错: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs ValidationErrors
	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{Field: re.Field(), Message: re.Description()})
	}
	return errs
}
